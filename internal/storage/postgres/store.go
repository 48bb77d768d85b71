// Package postgres provides the PostgreSQL storage implementation for
// the MCP gateway and control plane.
package postgres

import (
	"log"

	"mcpgate/internal/config"
)

// Store is the main PostgreSQL store; it owns the connection pool and
// exposes one hand-written-SQL sub-store per entity group.
type Store struct {
	config *config.DatabaseConfig
	db     *DB

	Users        *UserStore
	Orgs         *OrgStore
	Servers      *ServerStore
	Tools        *ToolStore
	Configs      *ConfigurationStore
	Accounts     *ConnectedAccountStore
	Bundles      *BundleStore
	Sessions     *SessionStore
	AuditLog     *AuditLogStore
	Billing      *BillingStore
	OAuth2Clients *OAuth2ClientStore
}

// NewStore creates a new PostgreSQL store and runs pending schema
// migrations.
func NewStore(cfg *config.DatabaseConfig) (*Store, error) {
	db, err := InitDB(cfg)
	if err != nil {
		return nil, err
	}

	s := &Store{config: cfg, db: db}
	s.Users = &UserStore{db: db}
	s.Orgs = &OrgStore{db: db}
	s.Servers = &ServerStore{db: db}
	s.Tools = &ToolStore{db: db}
	s.Configs = &ConfigurationStore{db: db}
	s.Accounts = &ConnectedAccountStore{db: db}
	s.Bundles = &BundleStore{db: db}
	s.Sessions = &SessionStore{db: db}
	s.AuditLog = &AuditLogStore{db: db}
	s.Billing = &BillingStore{db: db}
	s.OAuth2Clients = &OAuth2ClientStore{db: db}

	log.Println("postgres store initialized successfully")
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// DB returns the underlying *DB for callers that need a raw
// transaction (e.g. the catalog sync advisory lock).
func (s *Store) DB() *DB { return s.db }
