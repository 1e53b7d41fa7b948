// Package boundary is the single sanctioned path for reading and writing
// sensitive fields. It composes the key manager, the audit logger, and the
// RBAC engine; application code never touches sensitive columns directly.
package boundary

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"ledgerline/backend/internal/apperrors"
	"ledgerline/backend/internal/audit"
	"ledgerline/backend/internal/kms"
	rbacdomain "ledgerline/backend/internal/rbac/domain"
	"ledgerline/backend/internal/registry"
)

// AccessChecker is the slice of the RBAC engine the boundary needs.
type AccessChecker interface {
	CheckAccess(ctx context.Context, req rbacdomain.AccessRequest) (rbacdomain.AccessDecision, error)
}

// KeySource hands out tenant DEKs. Decryption asks for the generation a
// ciphertext was written under, which may trail the current one while
// re-encryption after a rotation is still in progress.
type KeySource interface {
	GetTenantKey(ctx context.Context, tenantID string) (*kms.TenantKey, error)
	KeyForGeneration(ctx context.Context, tenantID string, generation int) (*kms.TenantKey, error)
}

// AuditSink records boundary decisions. Satisfied by the audit logger.
type AuditSink interface {
	Log(ctx context.Context, ev audit.Event) (string, error)
}

// Request carries one boundary operation. Fields is used by Read, Data by
// Write and Create, Justification and Privileged by Export.
type Request struct {
	UserID        string                  `validate:"required"`
	TenantID      string                  `validate:"required"`
	ResourceType  rbacdomain.ResourceType `validate:"required"`
	ResourceID    string
	Fields        []string
	Data          map[string]string
	Justification string
	// Privileged reports whether the caller's session is inside its
	// privileged window. Set by the transport layer from the session record.
	Privileged bool
	IPAddress  string
	UserAgent  string
}

// Result is the outcome of a boundary operation. AuditLogID is set whenever
// an audit entry was written, including for denials, so a caller can
// correlate an error with the exact log entry.
type Result struct {
	Success      bool
	Data         map[string]string
	DeniedFields []string
	AuditLogID   string
}

// Service implements the boundary operations.
type Service struct {
	access           AccessChecker
	fields           *registry.FieldRegistry
	keys             KeySource
	audit            AuditSink
	store            RecordStore
	minJustification int
	validate         *validator.Validate
	log              *zap.Logger
}

// NewService wires the boundary. minJustification is the minimum export
// justification length in characters.
func NewService(access AccessChecker, fields *registry.FieldRegistry, keys KeySource, auditSink AuditSink, store RecordStore, minJustification int, log *zap.Logger) *Service {
	return &Service{
		access:           access,
		fields:           fields,
		keys:             keys,
		audit:            auditSink,
		store:            store,
		minJustification: minJustification,
		validate:         validator.New(),
		log:              log,
	}
}

// Read returns the requested fields of a record. Sensitive fields the caller
// is not entitled to are reported in DeniedFields instead of failing the
// whole request. Every call is audited, including denials.
func (s *Service) Read(ctx context.Context, req Request) (*Result, error) {
	if err := s.validate.Struct(req); err != nil {
		return &Result{}, apperrors.Validation("missing required request fields")
	}

	rec, decision, res, err := s.authorize(ctx, req, rbacdomain.ActionRead)
	if err != nil {
		return res, err
	}

	granted, denied := s.partitionFields(req, decision)
	data := map[string]string{}
	var sensitiveRead []string
	var encrypted []string
	for _, f := range granted {
		if s.fields.IsSensitiveField(req.ResourceType, f) {
			encrypted = append(encrypted, f)
			continue
		}
		if v, ok := rec.Attrs[f]; ok {
			data[f] = v
		}
	}
	if len(encrypted) > 0 {
		values, err := s.decryptFields(ctx, req, encrypted)
		if err != nil {
			res := s.auditFailure(ctx, req, rbacdomain.ActionRead, "decrypt_failed", encrypted)
			return res, err
		}
		for f, v := range values {
			data[f] = v
			sensitiveRead = append(sensitiveRead, f)
		}
	}

	auditID, err := s.auditSuccess(ctx, req, rbacdomain.ActionRead, append(sensitiveRead, denied...))
	if err != nil {
		return &Result{AuditLogID: auditID}, err
	}
	return &Result{Success: true, Data: data, DeniedFields: denied, AuditLogID: auditID}, nil
}

// Write updates a record. Non-sensitive fields land in the record shell;
// sensitive fields are encrypted under the tenant DEK first. Writing any
// sensitive field requires sensitive scope; a partial sensitive write is
// never applied.
func (s *Service) Write(ctx context.Context, req Request) (*Result, error) {
	if err := s.validate.Struct(req); err != nil || len(req.Data) == 0 {
		return &Result{}, apperrors.Validation("missing required request fields")
	}

	rec, decision, res, err := s.authorize(ctx, req, rbacdomain.ActionWrite)
	if err != nil {
		return res, err
	}

	plain, sensitive := s.partitionData(req)
	if len(sensitive) > 0 && !decision.SensitiveScope {
		res := s.auditFailure(ctx, req, rbacdomain.ActionWrite, string(rbacdomain.DenyNoPermission), keysOf(sensitive))
		return res, apperrors.PermissionDenied("you do not have permission to modify these fields")
	}

	if len(sensitive) > 0 {
		if err := s.encryptAndStore(ctx, req, sensitive); err != nil {
			res := s.auditFailure(ctx, req, rbacdomain.ActionWrite, "encrypt_failed", keysOf(sensitive))
			return res, err
		}
	}
	if len(plain) > 0 {
		for k, v := range plain {
			rec.Attrs[k] = v
		}
		if err := s.store.UpdateRecordAttrs(ctx, rec); err != nil {
			res := s.auditFailure(ctx, req, rbacdomain.ActionWrite, "storage_error", keysOf(sensitive))
			return res, fmt.Errorf("update record: %w", err)
		}
	}

	auditID, err := s.auditSuccess(ctx, req, rbacdomain.ActionWrite, keysOf(sensitive))
	if err != nil {
		return &Result{AuditLogID: auditID}, err
	}
	return &Result{Success: true, AuditLogID: auditID}, nil
}

// Create inserts a new record owned by the caller and returns its id in
// Data["id"].
func (s *Service) Create(ctx context.Context, req Request) (*Result, error) {
	if err := s.validate.Struct(req); err != nil {
		return &Result{}, apperrors.Validation("missing required request fields")
	}

	decision, err := s.access.CheckAccess(ctx, rbacdomain.AccessRequest{
		UserID:       req.UserID,
		TenantID:     req.TenantID,
		ResourceType: req.ResourceType,
		Action:       rbacdomain.ActionCreate,
		OwnerID:      req.UserID,
	})
	if err != nil {
		return &Result{}, err
	}
	if !decision.Allowed {
		res := s.auditFailure(ctx, req, rbacdomain.ActionCreate, string(decision.Reason), nil)
		return res, apperrors.PermissionDenied(decision.Detail)
	}

	plain, sensitive := s.partitionData(req)
	if len(sensitive) > 0 && !decision.SensitiveScope {
		res := s.auditFailure(ctx, req, rbacdomain.ActionCreate, string(rbacdomain.DenyNoPermission), keysOf(sensitive))
		return res, apperrors.PermissionDenied("you do not have permission to set these fields")
	}

	req.ResourceID = uuid.New().String()
	rec := &Record{
		ID:           req.ResourceID,
		TenantID:     req.TenantID,
		ResourceType: req.ResourceType,
		OwnerID:      req.UserID,
		Attrs:        plain,
	}
	if err := s.store.CreateRecord(ctx, rec); err != nil {
		res := s.auditFailure(ctx, req, rbacdomain.ActionCreate, "storage_error", keysOf(sensitive))
		return res, fmt.Errorf("create record: %w", err)
	}
	if len(sensitive) > 0 {
		if err := s.encryptAndStore(ctx, req, sensitive); err != nil {
			res := s.auditFailure(ctx, req, rbacdomain.ActionCreate, "encrypt_failed", keysOf(sensitive))
			return res, err
		}
	}

	auditID, err := s.auditSuccess(ctx, req, rbacdomain.ActionCreate, keysOf(sensitive))
	if err != nil {
		return &Result{AuditLogID: auditID}, err
	}
	return &Result{Success: true, Data: map[string]string{"id": req.ResourceID}, AuditLogID: auditID}, nil
}

// Delete removes a record and its sensitive values.
func (s *Service) Delete(ctx context.Context, req Request) (*Result, error) {
	if err := s.validate.Struct(req); err != nil {
		return &Result{}, apperrors.Validation("missing required request fields")
	}

	_, _, res, err := s.authorize(ctx, req, rbacdomain.ActionDelete)
	if err != nil {
		return res, err
	}
	if err := s.store.DeleteRecord(ctx, req.TenantID, req.ResourceType, req.ResourceID); err != nil {
		res := s.auditFailure(ctx, req, rbacdomain.ActionDelete, "storage_error", nil)
		return res, fmt.Errorf("delete record: %w", err)
	}

	auditID, err := s.auditSuccess(ctx, req, rbacdomain.ActionDelete, nil)
	if err != nil {
		return &Result{AuditLogID: auditID}, err
	}
	return &Result{Success: true, AuditLogID: auditID}, nil
}

// Export returns every field of a record, decrypted. The highest-risk
// operation: it demands a substantive justification and an active privileged
// window before RBAC is even consulted, and both failures are audited.
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	if err := s.validate.Struct(req); err != nil {
		return &Result{}, apperrors.Validation("missing required request fields")
	}
	if len(req.Justification) < s.minJustification {
		res := s.auditFailure(ctx, req, rbacdomain.ActionExport, "justification_too_short", nil)
		return res, apperrors.Validation(fmt.Sprintf("export justification must be at least %d characters", s.minJustification))
	}
	if !req.Privileged {
		res := s.auditFailure(ctx, req, rbacdomain.ActionExport, "privileged_window_required", nil)
		return res, apperrors.PermissionDenied("export requires recent credential verification")
	}

	rec, decision, res, err := s.authorize(ctx, req, rbacdomain.ActionExport)
	if err != nil {
		return res, err
	}
	if !decision.SensitiveScope {
		res := s.auditFailure(ctx, req, rbacdomain.ActionExport, string(rbacdomain.DenyNoPermission), nil)
		return res, apperrors.PermissionDenied("export requires sensitive-data access")
	}

	data := map[string]string{}
	for k, v := range rec.Attrs {
		data[k] = v
	}
	sensitiveFields := s.fields.SensitiveFields(req.ResourceType)
	values, err := s.decryptFields(ctx, req, sensitiveFields)
	if err != nil {
		res := s.auditFailure(ctx, req, rbacdomain.ActionExport, "decrypt_failed", sensitiveFields)
		return res, err
	}
	var touched []string
	for f, v := range values {
		data[f] = v
		touched = append(touched, f)
	}

	s.log.Info("sensitive export",
		zap.String("tenant_id", req.TenantID),
		zap.String("user_id", req.UserID),
		zap.String("resource_type", string(req.ResourceType)),
		zap.String("resource_id", req.ResourceID),
		zap.String("justification", req.Justification))

	auditID, err := s.auditSuccess(ctx, req, rbacdomain.ActionExport, touched)
	if err != nil {
		return &Result{AuditLogID: auditID}, err
	}
	return &Result{Success: true, Data: data, AuditLogID: auditID}, nil
}

// authorize fetches the record and runs the RBAC check shared by the
// record-targeting operations. On denial it writes the audit entry and
// returns the error the caller should surface.
func (s *Service) authorize(ctx context.Context, req Request, action rbacdomain.Action) (*Record, rbacdomain.AccessDecision, *Result, error) {
	rec, err := s.store.GetRecord(ctx, req.TenantID, req.ResourceType, req.ResourceID)
	if err == ErrRecordNotFound {
		res := s.auditFailure(ctx, req, action, string(rbacdomain.DenyNotFound), nil)
		return nil, rbacdomain.AccessDecision{}, res, apperrors.PermissionDenied("resource not found")
	}
	if err != nil {
		return nil, rbacdomain.AccessDecision{}, &Result{}, err
	}

	decision, err := s.access.CheckAccess(ctx, rbacdomain.AccessRequest{
		UserID:       req.UserID,
		TenantID:     req.TenantID,
		ResourceType: req.ResourceType,
		Action:       action,
		ResourceID:   req.ResourceID,
		OwnerID:      rec.OwnerID,
	})
	if err != nil {
		return nil, rbacdomain.AccessDecision{}, &Result{}, err
	}
	if !decision.Allowed {
		res := s.auditFailure(ctx, req, action, string(decision.Reason), nil)
		return nil, decision, res, apperrors.PermissionDenied(decision.Detail)
	}
	return rec, decision, nil, nil
}

// partitionFields splits a read request into granted and denied field lists.
func (s *Service) partitionFields(req Request, decision rbacdomain.AccessDecision) (granted, denied []string) {
	for _, f := range req.Fields {
		if s.fields.IsSensitiveField(req.ResourceType, f) && !decision.SensitiveScope {
			denied = append(denied, f)
			continue
		}
		granted = append(granted, f)
	}
	return granted, denied
}

func (s *Service) partitionData(req Request) (plain, sensitive map[string]string) {
	plain, sensitive = map[string]string{}, map[string]string{}
	for k, v := range req.Data {
		if s.fields.IsSensitiveField(req.ResourceType, k) {
			sensitive[k] = v
		} else {
			plain[k] = v
		}
	}
	return plain, sensitive
}

func (s *Service) encryptAndStore(ctx context.Context, req Request, sensitive map[string]string) error {
	key, err := s.keys.GetTenantKey(ctx, req.TenantID)
	if err != nil {
		return err
	}
	values := map[string]SensitiveValue{}
	for f, v := range sensitive {
		ct, err := sealField(key.Key, []byte(v), fieldAAD(req.TenantID, string(req.ResourceType), req.ResourceID, f))
		if err != nil {
			return fmt.Errorf("encrypt field %s: %w", f, err)
		}
		values[f] = SensitiveValue{Ciphertext: ct, KeyGeneration: key.Generation}
	}
	return s.store.PutSensitiveValues(ctx, req.TenantID, req.ResourceType, req.ResourceID, values)
}

func (s *Service) decryptFields(ctx context.Context, req Request, fields []string) (map[string]string, error) {
	stored, err := s.store.GetSensitiveValues(ctx, req.TenantID, req.ResourceType, req.ResourceID)
	if err != nil {
		return nil, err
	}
	// Values can span key generations until re-encryption after a rotation
	// catches up; resolve each generation once.
	keys := map[int][]byte{}
	out := map[string]string{}
	for _, f := range fields {
		v, ok := stored[f]
		if !ok {
			continue
		}
		k, ok := keys[v.KeyGeneration]
		if !ok {
			tk, err := s.keys.KeyForGeneration(ctx, req.TenantID, v.KeyGeneration)
			if err != nil {
				return nil, apperrors.Configuration(fmt.Sprintf("no key for generation %d of field %s", v.KeyGeneration, f)).Wrap(err)
			}
			k = tk.Key
			keys[v.KeyGeneration] = k
		}
		pt, err := openField(k, v.Ciphertext, fieldAAD(req.TenantID, string(req.ResourceType), req.ResourceID, f))
		if err != nil {
			return nil, apperrors.Configuration("stored ciphertext failed authentication").Wrap(err)
		}
		out[f] = string(pt)
	}
	return out, nil
}

// auditFailure records a denied or failed operation. A failed audit write
// here is logged by the audit logger itself; the denial error still wins.
func (s *Service) auditFailure(ctx context.Context, req Request, action rbacdomain.Action, reason string, fields []string) *Result {
	id, _ := s.audit.Log(ctx, audit.Event{
		TenantID:        req.TenantID,
		UserID:          req.UserID,
		Action:          string(action),
		ResourceType:    string(req.ResourceType),
		ResourceID:      req.ResourceID,
		Success:         false,
		FailureReason:   reason,
		SensitiveFields: fields,
		IPAddress:       req.IPAddress,
		UserAgent:       req.UserAgent,
	})
	return &Result{AuditLogID: id}
}

// auditSuccess records a completed operation. An audit write failure after a
// successful sensitive action is escalated to the caller as a configuration
// error rather than swallowed.
func (s *Service) auditSuccess(ctx context.Context, req Request, action rbacdomain.Action, fields []string) (string, error) {
	id, err := s.audit.Log(ctx, audit.Event{
		TenantID:        req.TenantID,
		UserID:          req.UserID,
		Action:          string(action),
		ResourceType:    string(req.ResourceType),
		ResourceID:      req.ResourceID,
		Success:         true,
		SensitiveFields: fields,
		IPAddress:       req.IPAddress,
		UserAgent:       req.UserAgent,
	})
	if err != nil {
		return "", apperrors.Configuration("audit trail unavailable").Wrap(err)
	}
	return id, nil
}

func keysOf(m map[string]string) []string {
	if len(m) == 0 {
		return nil
	}
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
