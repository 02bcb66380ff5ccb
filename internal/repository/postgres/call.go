package postgres

import (
	"context"
	"fmt"
	"time"

	"callagent/internal/domain"
	"callagent/internal/domain/models"
	"callagent/internal/domain/repositories"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const callColumns = `
	id, provider_call_id, direction, caller_number, callee_number, caller_country, language,
	status, start_time, end_time, duration,
	transcript, transcript_confidence, full_transcript, transcription_status, turn_count, empty_turns,
	intent, priority, emergency_detected, emergency_severity, emergency_keywords, emergency_context,
	ai_response, system_context, follow_up_instructions,
	recording_id, recording_url, recording_duration,
	initiated_by, created_at, updated_at`

// PostgresCallRepository implements repositories.CallRepository
type PostgresCallRepository struct {
	pool   *pgxpool.Pool
	tables *TableNames
}

// NewCallRepository creates a new call repository
func NewCallRepository(config *RepositoryConfig) repositories.CallRepository {
	return &PostgresCallRepository{
		pool:   config.Pool,
		tables: config.Tables,
	}
}

// terminalStatuses is passed to "status <> ALL($n)" guards
func terminalStatuses() []string {
	out := make([]string, len(models.TerminalStatuses))
	for i, s := range models.TerminalStatuses {
		out[i] = string(s)
	}
	return out
}

// UpsertOnStart inserts with ON CONFLICT DO NOTHING. A duplicate delivery
// falls through to a plain read of the winner's row.
func (r *PostgresCallRepository) UpsertOnStart(ctx context.Context, call *models.CallSession) (bool, error) {
	if call.ID == "" {
		call.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if call.StartTime.IsZero() {
		call.StartTime = now
	}
	if call.Status == "" {
		call.Status = models.CallStatusInitiated
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (
			id, provider_call_id, direction, caller_number, callee_number, caller_country, language,
			status, start_time, intent, priority, emergency_severity, initiated_by, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $14)
		ON CONFLICT (provider_call_id) DO NOTHING
		RETURNING %s
	`, r.tables.Calls, callColumns)

	executor := GetExecutor(ctx, r.pool)
	stored, err := scanCall(executor.QueryRow(ctx, query,
		call.ID,
		call.ProviderCallID,
		string(call.Direction),
		call.CallerNumber,
		call.CalleeNumber,
		call.CallerCountry,
		call.Language,
		string(call.Status),
		call.StartTime,
		string(models.IntentUnknown),
		string(models.PriorityLow),
		string(models.SeverityNone),
		call.InitiatedBy,
		now,
	))
	if err == nil {
		*call = *stored
		return true, nil
	}
	if !isPgNoRowsError(err) {
		return false, fmt.Errorf("insert call: %w", err)
	}

	existing, err := r.FindByProviderCallID(ctx, call.ProviderCallID)
	if err != nil {
		return false, err
	}
	*call = *existing
	return false, nil
}

// ApplyTurnUpdate merges turn fields unless the call is terminal
func (r *PostgresCallRepository) ApplyTurnUpdate(ctx context.Context, providerCallID string, update *models.TurnUpdate) (*models.CallSession, error) {
	a := update.Analysis
	hasAnalysis := a != nil
	if a == nil {
		a = &models.Analysis{}
	}
	keywords := a.Keywords
	if keywords == nil {
		keywords = []string{}
	}

	increment := 0
	if update.IncrementTurn {
		increment = 1
	}

	query := fmt.Sprintf(`
		UPDATE %s SET
			transcript = COALESCE($2, transcript),
			transcript_confidence = COALESCE($3, transcript_confidence),
			caller_country = COALESCE(NULLIF($4, ''), caller_country),
			language = COALESCE(NULLIF($5, ''), language),
			turn_count = turn_count + $6,
			empty_turns = COALESCE($7, empty_turns),
			intent = CASE WHEN $8::boolean THEN $9 ELSE intent END,
			priority = CASE WHEN $8::boolean THEN $10 ELSE priority END,
			emergency_detected = CASE WHEN $8::boolean THEN $11 ELSE emergency_detected END,
			emergency_severity = CASE WHEN $8::boolean THEN $12 ELSE emergency_severity END,
			emergency_keywords = CASE WHEN $8::boolean THEN $13::text[] ELSE emergency_keywords END,
			emergency_context = CASE WHEN $8::boolean THEN $14 ELSE emergency_context END,
			ai_response = CASE WHEN $8::boolean THEN $15 ELSE ai_response END,
			system_context = CASE WHEN $8::boolean THEN $16 ELSE system_context END,
			follow_up_instructions = CASE WHEN $8::boolean THEN $17 ELSE follow_up_instructions END,
			updated_at = NOW()
		WHERE provider_call_id = $1 AND status <> ALL($18)
		RETURNING %s
	`, r.tables.Calls, callColumns)

	executor := GetExecutor(ctx, r.pool)
	call, err := scanCall(executor.QueryRow(ctx, query,
		providerCallID,
		update.Transcript,
		update.TranscriptConfidence,
		update.CallerCountry,
		update.Language,
		increment,
		update.EmptyTurns,
		hasAnalysis,
		string(a.Intent),
		string(a.Priority),
		a.IsEmergency,
		string(a.Severity),
		keywords,
		a.EmergencyContext,
		a.ReplyText,
		a.AuxiliaryContext,
		a.FollowUpInstructions,
		terminalStatuses(),
	))
	if err != nil {
		return r.guardedMiss(ctx, providerCallID, err, "apply turn update")
	}
	return call, nil
}

// ApplyStatusUpdate merges a status callback unless the call is already terminal
func (r *PostgresCallRepository) ApplyStatusUpdate(ctx context.Context, providerCallID string, update *models.StatusUpdate) (*models.CallSession, error) {
	query := fmt.Sprintf(`
		UPDATE %s SET
			status = $2,
			duration = COALESCE($3, duration),
			end_time = COALESCE($4, end_time),
			recording_url = COALESCE(NULLIF($5, ''), recording_url),
			recording_id = COALESCE(NULLIF($6, ''), recording_id),
			updated_at = NOW()
		WHERE provider_call_id = $1 AND status <> ALL($7)
		RETURNING %s
	`, r.tables.Calls, callColumns)

	executor := GetExecutor(ctx, r.pool)
	call, err := scanCall(executor.QueryRow(ctx, query,
		providerCallID,
		string(update.Status),
		update.Duration,
		update.EndTime,
		update.RecordingURL,
		update.RecordingID,
		terminalStatuses(),
	))
	if err != nil {
		return r.guardedMiss(ctx, providerCallID, err, "apply status update")
	}
	return call, nil
}

// ApplyRecordingUpdate merges recording metadata
func (r *PostgresCallRepository) ApplyRecordingUpdate(ctx context.Context, providerCallID string, update *models.RecordingUpdate) (*models.CallSession, error) {
	query := fmt.Sprintf(`
		UPDATE %s SET
			recording_id = COALESCE(NULLIF($2, ''), recording_id),
			recording_url = COALESCE(NULLIF($3, ''), recording_url),
			recording_duration = $4,
			updated_at = NOW()
		WHERE provider_call_id = $1
		RETURNING %s
	`, r.tables.Calls, callColumns)

	executor := GetExecutor(ctx, r.pool)
	call, err := scanCall(executor.QueryRow(ctx, query,
		providerCallID, update.RecordingID, update.RecordingURL, update.RecordingDuration,
	))
	if err != nil {
		if isPgNoRowsError(err) {
			return nil, fmt.Errorf("call %s: %w", providerCallID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("apply recording update: %w", err)
	}
	return call, nil
}

// ApplyTranscription merges the full transcription
func (r *PostgresCallRepository) ApplyTranscription(ctx context.Context, providerCallID string, update *models.TranscriptionUpdate) (*models.CallSession, error) {
	query := fmt.Sprintf(`
		UPDATE %s SET
			full_transcript = $2,
			transcription_status = $3,
			updated_at = NOW()
		WHERE provider_call_id = $1
		RETURNING %s
	`, r.tables.Calls, callColumns)

	executor := GetExecutor(ctx, r.pool)
	call, err := scanCall(executor.QueryRow(ctx, query, providerCallID, update.Text, update.Status))
	if err != nil {
		if isPgNoRowsError(err) {
			return nil, fmt.Errorf("call %s: %w", providerCallID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("apply transcription: %w", err)
	}
	return call, nil
}

// FindByProviderCallID retrieves a call by the provider's call id
func (r *PostgresCallRepository) FindByProviderCallID(ctx context.Context, providerCallID string) (*models.CallSession, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE provider_call_id = $1`, callColumns, r.tables.Calls)

	executor := GetExecutor(ctx, r.pool)
	call, err := scanCall(executor.QueryRow(ctx, query, providerCallID))
	if err != nil {
		if isPgNoRowsError(err) {
			return nil, fmt.Errorf("call %s: %w", providerCallID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get call: %w", err)
	}
	return call, nil
}

// List retrieves the newest calls first
func (r *PostgresCallRepository) List(ctx context.Context, limit int) ([]models.CallSession, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s ORDER BY created_at DESC LIMIT $1`, callColumns, r.tables.Calls)

	executor := GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list calls: %w", err)
	}
	defer rows.Close()

	calls := []models.CallSession{}
	for rows.Next() {
		call, err := scanCall(rows)
		if err != nil {
			return nil, fmt.Errorf("scan call: %w", err)
		}
		calls = append(calls, *call)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate calls: %w", err)
	}
	return calls, nil
}

// guardedMiss explains an UPDATE ... WHERE status <> ALL(terminal) that
// matched no row: either the call does not exist or it is terminal.
func (r *PostgresCallRepository) guardedMiss(ctx context.Context, providerCallID string, err error, op string) (*models.CallSession, error) {
	if !isPgNoRowsError(err) {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	existing, findErr := r.FindByProviderCallID(ctx, providerCallID)
	if findErr != nil {
		return nil, findErr
	}
	return existing, fmt.Errorf("call %s is %s: %w", providerCallID, existing.Status, domain.ErrTerminal)
}

func scanCall(row pgx.Row) (*models.CallSession, error) {
	var (
		c                                             models.CallSession
		direction, status, intent, priority, severity string
	)
	err := row.Scan(
		&c.ID, &c.ProviderCallID, &direction, &c.CallerNumber, &c.CalleeNumber, &c.CallerCountry, &c.Language,
		&status, &c.StartTime, &c.EndTime, &c.Duration,
		&c.Transcript, &c.TranscriptConfidence, &c.FullTranscript, &c.TranscriptionStatus, &c.TurnCount, &c.EmptyTurns,
		&intent, &priority, &c.EmergencyDetected, &severity, &c.EmergencyKeywords, &c.EmergencyContext,
		&c.AIResponse, &c.SystemContext, &c.FollowUpInstructions,
		&c.RecordingID, &c.RecordingURL, &c.RecordingDuration,
		&c.InitiatedBy, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.Direction = models.Direction(direction)
	c.Status = models.CallStatus(status)
	c.Intent = models.Intent(intent)
	c.Priority = models.Priority(priority)
	c.EmergencySeverity = models.Severity(severity)
	return &c, nil
}
