package relational

import (
	"context"
	"encoding/json"

	"ltmc/internal/apperrors"
)

// PatternInsert carries a new code generation experience.
type PatternInsert struct {
	FunctionName    string
	FileName        string
	ModuleName      string
	InputPrompt     string
	GeneratedCode   string
	Result          string
	ExecutionTimeMs int64
	ErrorMessage    string
	Tags            []string
	VectorID        int64
}

// InsertCodePattern records a pattern row keyed by its vector id.
func (s *Store) InsertCodePattern(ctx context.Context, p PatternInsert) (int64, error) {
	if p.InputPrompt == "" {
		return 0, apperrors.NewRequiredFieldError("input_prompt")
	}
	if p.GeneratedCode == "" {
		return 0, apperrors.NewRequiredFieldError("generated_code")
	}
	if !ValidResult(p.Result) {
		return 0, apperrors.NewValidationError("result", "must be one of pass, fail, partial", p.Result)
	}
	tags := "[]"
	if len(p.Tags) > 0 {
		b, err := json.Marshal(p.Tags)
		if err != nil {
			return 0, apperrors.NewValidationError("tags", "not serializable", p.Tags)
		}
		tags = string(b)
	}
	id, err := s.insertReturningID(ctx, s.db,
		`INSERT INTO CodePatterns (function_name, file_name, module_name, input_prompt, generated_code,
		  result, execution_time_ms, error_message, tags, vector_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		nullStr(p.FunctionName), nullStr(p.FileName), nullStr(p.ModuleName),
		p.InputPrompt, p.GeneratedCode, p.Result,
		nullInt(p.ExecutionTimeMs), nullStr(p.ErrorMessage), tags, p.VectorID)
	if err != nil {
		return 0, storageErr("inserting code pattern", "code pattern", p.FunctionName, err)
	}
	return id, nil
}

// PatternsByVectorIDs hydrates patterns for a similarity result set.
func (s *Store) PatternsByVectorIDs(ctx context.Context, vectorIDs []int64) ([]CodePattern, error) {
	if len(vectorIDs) == 0 {
		return nil, nil
	}
	query, args, err := inQuery(
		`SELECT id, function_name, file_name, module_name, input_prompt, generated_code,
		        result, execution_time_ms, error_message, tags, created_at, vector_id
		 FROM CodePatterns WHERE vector_id IN (?)`, vectorIDs)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrorCodeRelational, "building pattern query", err)
	}
	var out []CodePattern
	if err := s.db.SelectContext(ctx, &out, s.rebind(query), args...); err != nil {
		return nil, storageErr("hydrating patterns", "code pattern", vectorIDs, err)
	}
	return out, nil
}

// ListPatterns filters pattern rows by result and function name,
// newest first.
func (s *Store) ListPatterns(ctx context.Context, result, functionName string, limit int) ([]CodePattern, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT id, function_name, file_name, module_name, input_prompt, generated_code,
	                 result, execution_time_ms, error_message, tags, created_at, vector_id
	          FROM CodePatterns WHERE 1=1`
	args := []interface{}{}
	if result != "" {
		if !ValidResult(result) {
			return nil, apperrors.NewValidationError("result", "must be one of pass, fail, partial", result)
		}
		query += ` AND result = ?`
		args = append(args, result)
	}
	if functionName != "" {
		query += ` AND function_name = ?`
		args = append(args, functionName)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	var out []CodePattern
	if err := s.db.SelectContext(ctx, &out, s.rebind(query), args...); err != nil {
		return nil, storageErr("listing patterns", "code pattern", result, err)
	}
	return out, nil
}

// AllPatternVectorIDs lists every pattern vector id, for the
// consistency sweep.
func (s *Store) AllPatternVectorIDs(ctx context.Context) ([]int64, error) {
	var out []int64
	if err := s.db.SelectContext(ctx, &out,
		`SELECT vector_id FROM CodePatterns ORDER BY vector_id`); err != nil {
		return nil, storageErr("listing pattern vector ids", "code pattern", nil, err)
	}
	return out, nil
}

// PatternSuccessRate reports pass/fail/partial counts, optionally for
// one function.
func (s *Store) PatternSuccessRate(ctx context.Context, functionName string) (map[string]int64, error) {
	query := `SELECT result, COUNT(*) AS n FROM CodePatterns`
	args := []interface{}{}
	if functionName != "" {
		query += ` WHERE function_name = ?`
		args = append(args, functionName)
	}
	query += ` GROUP BY result`

	rows, err := s.db.QueryxContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, storageErr("computing pattern stats", "code pattern", functionName, err)
	}
	defer rows.Close()

	counts := map[string]int64{ResultPass: 0, ResultFail: 0, ResultPartial: 0}
	for rows.Next() {
		var result string
		var n int64
		if err := rows.Scan(&result, &n); err != nil {
			return nil, storageErr("scanning pattern stats", "code pattern", functionName, err)
		}
		counts[result] = n
	}
	return counts, rows.Err()
}
