package repository

import (
	"sync"

	"gorm.io/gorm"
)

// Factory manages repository instances and ensures they are singletons
type Factory struct {
	db    *gorm.DB
	repos *Repositories
	once  sync.Once
}

// NewFactory creates a new repository factory
func NewFactory(db *gorm.DB) *Factory {
	return &Factory{
		db: db,
	}
}

// GetRepositories returns a singleton instance of all repositories
func (f *Factory) GetRepositories() *Repositories {
	f.once.Do(func() {
		f.repos = NewRepositories(f.db)
	})
	return f.repos
}

// GetSpreadsheetRepository returns the spreadsheet repository instance
func (f *Factory) GetSpreadsheetRepository() SpreadsheetRepository {
	return f.GetRepositories().Spreadsheet
}

// GetConvertedRepository returns the converted spreadsheet repository instance
func (f *Factory) GetConvertedRepository() ConvertedRepository {
	return f.GetRepositories().Converted
}

// GetSignedXmlRepository returns the signed xml repository instance
func (f *Factory) GetSignedXmlRepository() SignedXmlRepository {
	return f.GetRepositories().SignedXml
}

// GetBatchRepository returns the batch repository instance
func (f *Factory) GetBatchRepository() BatchRepository {
	return f.GetRepositories().Batch
}

// Global factory instance
var globalFactory *Factory
var factoryMu sync.Mutex

// InitializeFactory initializes the global repository factory
func InitializeFactory(db *gorm.DB) {
	factoryMu.Lock()
	defer factoryMu.Unlock()
	globalFactory = NewFactory(db)
}

// GetGlobalFactory returns the global repository factory instance
func GetGlobalFactory() *Factory {
	factoryMu.Lock()
	defer factoryMu.Unlock()
	if globalFactory == nil {
		panic("Repository factory not initialized. Call InitializeFactory first.")
	}
	return globalFactory
}
