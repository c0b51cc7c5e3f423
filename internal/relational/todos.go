package relational

import (
	"context"

	"ltmc/internal/apperrors"
)

// CreateTodo inserts a pending task.
func (s *Store) CreateTodo(ctx context.Context, title, description, priority string) (int64, error) {
	if title == "" {
		return 0, apperrors.ErrTitleRequired
	}
	if priority == "" {
		priority = PriorityMedium
	}
	switch priority {
	case PriorityLow, PriorityMedium, PriorityHigh:
	default:
		return 0, apperrors.NewValidationError("priority", "must be one of low, medium, high", priority)
	}
	id, err := s.insertReturningID(ctx, s.db,
		`INSERT INTO Todos (title, description, priority, status) VALUES (?, ?, ?, ?)`,
		title, description, priority, TodoPending)
	if err != nil {
		return 0, storageErr("inserting todo", "todo", title, err)
	}
	return id, nil
}

// GetTodo loads a task by id.
func (s *Store) GetTodo(ctx context.Context, id int64) (*Todo, error) {
	var t Todo
	if err := s.db.GetContext(ctx, &t, s.rebind(
		`SELECT id, title, description, priority, status, created_at, completed_at
		 FROM Todos WHERE id = ?`), id); err != nil {
		return nil, storageErr("loading todo", "todo", id, err)
	}
	return &t, nil
}

// ListTodos filters tasks by status and priority. Empty filters match
// everything; results are newest first.
func (s *Store) ListTodos(ctx context.Context, status, priority string, limit int) ([]Todo, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT id, title, description, priority, status, created_at, completed_at FROM Todos WHERE 1=1`
	args := []interface{}{}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	if priority != "" {
		query += ` AND priority = ?`
		args = append(args, priority)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	var out []Todo
	if err := s.db.SelectContext(ctx, &out, s.rebind(query), args...); err != nil {
		return nil, storageErr("listing todos", "todo", status, err)
	}
	return out, nil
}

// CompleteTodo marks a task completed and stamps completed_at.
func (s *Store) CompleteTodo(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, s.rebind(
		`UPDATE Todos SET status = ?, completed_at = CURRENT_TIMESTAMP WHERE id = ? AND status != ?`),
		TodoCompleted, id, TodoCompleted)
	if err != nil {
		return storageErr("completing todo", "todo", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		// Either missing or already completed; distinguish for the caller.
		if _, err := s.GetTodo(ctx, id); err != nil {
			return err
		}
		return apperrors.New(apperrors.ErrorCodeAlreadyExists, "todo is already completed",
			map[string]interface{}{"todo_id": id})
	}
	return nil
}

// DeleteTodo removes a task.
func (s *Store) DeleteTodo(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM Todos WHERE id = ?`), id)
	if err != nil {
		return storageErr("deleting todo", "todo", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperrors.NewNotFoundError("todo", id)
	}
	return nil
}

// SearchTodos matches title and description with a LIKE pattern.
func (s *Store) SearchTodos(ctx context.Context, query string, limit int) ([]Todo, error) {
	if query == "" {
		return nil, apperrors.ErrQueryRequired
	}
	if limit <= 0 {
		limit = 100
	}
	pattern := "%" + query + "%"
	var out []Todo
	if err := s.db.SelectContext(ctx, &out, s.rebind(
		`SELECT id, title, description, priority, status, created_at, completed_at
		 FROM Todos WHERE title LIKE ? OR description LIKE ?
		 ORDER BY created_at DESC, id DESC LIMIT ?`),
		pattern, pattern, limit); err != nil {
		return nil, storageErr("searching todos", "todo", query, err)
	}
	return out, nil
}
