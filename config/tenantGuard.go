package config

import (
	"context"
	"strings"

	"github.com/contabilhub/contabil_backend/appctx"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TenantGuardPlugin enforces multi-tenant isolation by automatically scoping
// queries/updates/deletes to the request's client_id when the model has a client_id column.
//
// This mirrors the row-level-security policies of the hosted data store as
// defense-in-depth inside the service. It does NOT apply to Raw SQL queries;
// those must include client_id manually. Admin/internal bypass is explicit
// via context flags.
type TenantGuardPlugin struct{}

func NewTenantGuardPlugin() *TenantGuardPlugin { return &TenantGuardPlugin{} }

func (p *TenantGuardPlugin) Name() string { return "tenant_guard" }

func (p *TenantGuardPlugin) Initialize(db *gorm.DB) error {
	// Query
	if err := db.Callback().Query().Before("gorm:query").Register("tenant_guard:query", tenantGuardCallback); err != nil {
		return err
	}
	// Row (First/Take)
	if err := db.Callback().Row().Before("gorm:row").Register("tenant_guard:row", tenantGuardCallback); err != nil {
		return err
	}
	// Update
	if err := db.Callback().Update().Before("gorm:update").Register("tenant_guard:update", tenantGuardCallback); err != nil {
		return err
	}
	// Delete
	if err := db.Callback().Delete().Before("gorm:delete").Register("tenant_guard:delete", tenantGuardCallback); err != nil {
		return err
	}
	return nil
}

func tenantGuardCallback(db *gorm.DB) {
	if db == nil || db.Statement == nil {
		return
	}
	ctx := db.Statement.Context
	if ctx == nil {
		return
	}
	if shouldBypassTenantScope(ctx) {
		return
	}
	clientID := clientIdFromContext(ctx)
	if clientID == "" {
		return
	}

	// Only apply if the current model/table includes a client_id column.
	if db.Statement.Schema == nil {
		return
	}
	hasClientID := false
	for _, f := range db.Statement.Schema.Fields {
		if strings.EqualFold(f.DBName, "client_id") {
			hasClientID = true
			break
		}
	}
	if !hasClientID {
		return
	}

	// Don't duplicate an explicit tenant filter.
	if whereHasClientID(db.Statement.Clauses["WHERE"]) {
		return
	}

	db.Statement.AddClause(clause.Where{
		Exprs: []clause.Expression{
			clause.Eq{Column: clause.Column{Table: clause.CurrentTable, Name: "client_id"}, Value: clientID},
		},
	})
}

func shouldBypassTenantScope(ctx context.Context) bool {
	if skip, ok := appctx.GetBool(ctx, appctx.ContextKeySkipTenantScope); ok && skip {
		return true
	}
	if isAdmin, ok := appctx.GetBool(ctx, appctx.ContextKeyIsAdmin); ok && isAdmin {
		return true
	}
	return false
}

func clientIdFromContext(ctx context.Context) string {
	v, _ := appctx.GetString(ctx, appctx.ContextKeyClientId)
	return v
}

func whereHasClientID(c clause.Clause) bool {
	where, ok := c.Expression.(clause.Where)
	if !ok {
		return false
	}
	for _, expr := range where.Exprs {
		if exprMentionsClientID(expr) {
			return true
		}
	}
	return false
}

func exprMentionsClientID(expr clause.Expression) bool {
	switch e := expr.(type) {
	case clause.Eq:
		if col, ok := e.Column.(clause.Column); ok && strings.EqualFold(col.Name, "client_id") {
			return true
		}
		if col, ok := e.Column.(string); ok && strings.Contains(strings.ToLower(col), "client_id") {
			return true
		}
	case clause.Expr:
		if strings.Contains(strings.ToLower(e.SQL), "client_id") {
			return true
		}
	case clause.AndConditions:
		for _, sub := range e.Exprs {
			if exprMentionsClientID(sub) {
				return true
			}
		}
	case clause.OrConditions:
		for _, sub := range e.Exprs {
			if exprMentionsClientID(sub) {
				return true
			}
		}
	}
	return false
}
