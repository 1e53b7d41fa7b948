// seed inserts development sample data for local testing.
// Idempotent: skips inserts if the dev admin (admin@example.com) already exists.
package main

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"ledgerline/backend/internal/config"
	"ledgerline/backend/internal/db"
	"ledgerline/backend/internal/kms"
	rbacdomain "ledgerline/backend/internal/rbac/domain"
	rbacrepo "ledgerline/backend/internal/rbac/repository"
	"ledgerline/backend/internal/security"
	userdomain "ledgerline/backend/internal/user/domain"
	userrepo "ledgerline/backend/internal/user/repository"
)

const (
	devTenantID   = "dev-tenant-001"
	devAdminEmail = "admin@example.com"
	devClerkEmail = "clerk@example.com"
	devPassword   = "password123"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	users := userrepo.NewPostgresRepository(conn)
	if existing, err := users.GetByEmail(ctx, devTenantID, devAdminEmail); err != nil {
		log.Fatalf("check existing: %v", err)
	} else if existing != nil {
		log.Println("seed data already present; nothing to do")
		return
	}

	hasher := security.NewHasher(cfg.BcryptCost)
	hash, err := hasher.Hash([]byte(devPassword))
	if err != nil {
		log.Fatalf("hash password: %v", err)
	}

	adminID := uuid.New().String()
	clerkID := uuid.New().String()
	for _, u := range []*userdomain.User{
		{ID: adminID, TenantID: devTenantID, Email: devAdminEmail, Name: "Dev Admin", PasswordHash: hash, Status: userdomain.UserStatusActive},
		{ID: clerkID, TenantID: devTenantID, Email: devClerkEmail, Name: "Dev Clerk", PasswordHash: hash, Status: userdomain.UserStatusActive},
	} {
		if err := users.Create(ctx, u); err != nil {
			log.Fatalf("create user %s: %v", u.Email, err)
		}
	}

	rbac := rbacrepo.NewPostgresRepository(conn)
	adminRole := &rbacdomain.Role{ID: uuid.New().String(), TenantID: devTenantID, Name: "admin"}
	clerkRole := &rbacdomain.Role{ID: uuid.New().String(), TenantID: devTenantID, Name: "clerk"}
	for _, r := range []*rbacdomain.Role{adminRole, clerkRole} {
		if err := rbac.CreateRole(ctx, r); err != nil {
			log.Fatalf("create role %s: %v", r.Name, err)
		}
	}

	// Admin gets every action with sensitive scope; the clerk can read and
	// write records but never sees sensitive fields.
	for _, rt := range rbacdomain.ResourceTypes() {
		for _, action := range rbacdomain.Actions() {
			p := &rbacdomain.Permission{
				ID:             uuid.New().String(),
				ResourceType:   rt,
				Action:         action,
				SensitiveScope: true,
			}
			if err := rbac.CreatePermission(ctx, p); err != nil {
				log.Fatalf("create permission: %v", err)
			}
			if err := rbac.AttachPermission(ctx, adminRole.ID, p.ID); err != nil {
				log.Fatalf("attach permission: %v", err)
			}
		}
	}
	for _, action := range []rbacdomain.Action{rbacdomain.ActionRead, rbacdomain.ActionWrite, rbacdomain.ActionCreate} {
		for _, rt := range []rbacdomain.ResourceType{
			rbacdomain.ResourceTaxProfile,
			rbacdomain.ResourceAssessment,
		} {
			p := &rbacdomain.Permission{ID: uuid.New().String(), ResourceType: rt, Action: action}
			if err := rbac.CreatePermission(ctx, p); err != nil {
				log.Fatalf("create permission: %v", err)
			}
			if err := rbac.AttachPermission(ctx, clerkRole.ID, p.ID); err != nil {
				log.Fatalf("attach permission: %v", err)
			}
		}
	}
	if err := rbac.AssignRole(ctx, adminID, adminRole.ID, devTenantID); err != nil {
		log.Fatalf("assign admin role: %v", err)
	}
	if err := rbac.AssignRole(ctx, clerkID, clerkRole.ID, devTenantID); err != nil {
		log.Fatalf("assign clerk role: %v", err)
	}

	// Bootstrap the tenant DEK so the first sensitive write does not have to.
	if cfg.MasterKey != "" {
		provider, err := kms.NewLocalProvider(cfg.MasterKey)
		if err != nil {
			log.Fatalf("kms provider: %v", err)
		}
		keys := kms.NewManager(provider, kms.NewPostgresKeyStore(conn), cfg.KeyTTL())
		if _, err := keys.GetTenantKey(ctx, devTenantID); err != nil {
			log.Fatalf("bootstrap tenant key: %v", err)
		}
	}

	log.Printf("seeded tenant %s with %s / %s (password %q)", devTenantID, devAdminEmail, devClerkEmail, devPassword)
}
