package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/pitabwire/uibind/internal/query"
	"github.com/pitabwire/uibind/model"
)

// PgConn is the subset of *pgxpool.Pool used by PostgresTransport.
type PgConn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var tableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// PostgresTransport stores a collection as JSONB documents in one table:
//
//	id TEXT PRIMARY KEY, body JSONB, created_at, updated_at
//
// Filters and sorters of list requests are evaluated by Postgres.
type PostgresTransport struct {
	db         PgConn
	table      string
	idProperty string
	reader     model.ReaderConfig
	writer     model.WriterConfig
	params     model.ParamNames
}

// NewPostgresTransport binds cfg.Table to db.
func NewPostgresTransport(db PgConn, idProperty string, cfg model.ProxyConfig) (*PostgresTransport, error) {
	if !tableName.MatchString(cfg.Table) {
		return nil, fmt.Errorf("proxy: invalid postgres table name %q", cfg.Table)
	}
	if idProperty == "" {
		idProperty = model.DefaultIDProperty
	}
	cfg = WithDefaults(cfg)
	return &PostgresTransport{
		db:         db,
		table:      pgx.Identifier{cfg.Table}.Sanitize(),
		idProperty: idProperty,
		reader:     *cfg.Reader,
		writer:     *cfg.Writer,
		params:     cfg.Params,
	}, nil
}

// EnsureTable creates the backing table when it does not exist.
func (t *PostgresTransport) EnsureTable(ctx context.Context) error {
	_, err := t.db.Exec(ctx, `CREATE TABLE IF NOT EXISTS `+t.table+` (
		id         TEXT PRIMARY KEY,
		body       JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`)
	if err != nil {
		return fmt.Errorf("proxy: create table %s: %w", t.table, err)
	}
	return nil
}

// Do implements Transport.
func (t *PostgresTransport) Do(ctx context.Context, req Request) (any, error) {
	switch {
	case req.Method == http.MethodGet && req.ID == nil:
		return t.list(ctx, req)
	case req.Method == http.MethodGet:
		return t.get(ctx, req.ID)
	case req.Method == http.MethodPost:
		return t.create(ctx, req.Body)
	case req.Method == http.MethodPut:
		return t.update(ctx, req.ID, req.Body)
	case req.Method == http.MethodDelete:
		return t.destroy(ctx, req.ID)
	}
	return nil, model.NewTransportError(http.StatusMethodNotAllowed,
		fmt.Errorf("method %s not supported", req.Method))
}

func (t *PostgresTransport) list(ctx context.Context, req Request) (any, error) {
	q, err := query.Decode(t.params, req.Query)
	if err != nil {
		return nil, model.NewTransportError(http.StatusBadRequest, err)
	}
	listSQL, countSQL, args, err := buildListQuery(t.table, q)
	if err != nil {
		return nil, model.NewTransportError(http.StatusBadRequest, err)
	}

	var total int
	if err := t.db.QueryRow(ctx, countSQL, args.where...).Scan(&total); err != nil {
		return nil, dbError("count", err)
	}

	rows, err := t.db.Query(ctx, listSQL, args.all()...)
	if err != nil {
		return nil, dbError("list", err)
	}
	defer rows.Close()

	var data []model.Record
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, dbError("scan", err)
		}
		rec, err := decodeBody(body)
		if err != nil {
			return nil, dbError("decode", err)
		}
		data = append(data, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError("list", err)
	}
	return Envelope(t.reader, data, total), nil
}

func (t *PostgresTransport) get(ctx context.Context, id any) (any, error) {
	var body []byte
	err := t.db.QueryRow(ctx, `SELECT body FROM `+t.table+` WHERE id = $1`, model.IDString(id)).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, dbError("get", err)
	}
	rec, err := decodeBody(body)
	if err != nil {
		return nil, dbError("decode", err)
	}
	return Wrap(t.reader.Root, map[string]any(rec)), nil
}

func (t *PostgresTransport) create(ctx context.Context, body any) (any, error) {
	rec, err := t.unwrapBody(body)
	if err != nil {
		return nil, err
	}
	if _, ok := rec.ID(t.idProperty); !ok {
		rec[t.idProperty] = uuid.NewString()
	}
	doc, err := json.Marshal(rec)
	if err != nil {
		return nil, model.NewTransportError(http.StatusBadRequest, err)
	}

	tag, err := t.db.Exec(ctx,
		`INSERT INTO `+t.table+` (id, body) VALUES ($1, $2) ON CONFLICT (id) DO NOTHING`,
		model.IDString(rec[t.idProperty]), doc,
	)
	if err != nil {
		return nil, dbError("insert", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, model.NewTransportError(http.StatusConflict,
			model.NewConflictError(fmt.Sprintf("record %v already exists", rec[t.idProperty])))
	}
	return Wrap(t.writer.Root, map[string]any(rec)), nil
}

func (t *PostgresTransport) update(ctx context.Context, id, body any) (any, error) {
	rec, err := t.unwrapBody(body)
	if err != nil {
		return nil, err
	}
	rec[t.idProperty] = id
	doc, err := json.Marshal(rec)
	if err != nil {
		return nil, model.NewTransportError(http.StatusBadRequest, err)
	}

	tag, err := t.db.Exec(ctx,
		`UPDATE `+t.table+` SET body = $2, updated_at = now() WHERE id = $1`,
		model.IDString(id), doc,
	)
	if err != nil {
		return nil, dbError("update", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, notFound(id)
	}
	return Wrap(t.writer.Root, map[string]any(rec)), nil
}

func (t *PostgresTransport) destroy(ctx context.Context, id any) (any, error) {
	tag, err := t.db.Exec(ctx, `DELETE FROM `+t.table+` WHERE id = $1`, model.IDString(id))
	if err != nil {
		return nil, dbError("delete", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, notFound(id)
	}
	return map[string]any{"success": true, t.idProperty: id}, nil
}

func (t *PostgresTransport) unwrapBody(body any) (model.Record, error) {
	payload := body
	if v, ok := Lookup(body, t.writer.Root); ok {
		payload = v
	}
	rec, ok := model.ToRecord(payload)
	if !ok {
		return nil, model.NewTransportError(http.StatusBadRequest,
			model.NewBadRequestError("request body must be an object"))
	}
	return rec.Clone(), nil
}

func decodeBody(body []byte) (model.Record, error) {
	var rec model.Record
	if err := json.Unmarshal(body, &rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func dbError(op string, err error) error {
	return model.NewTransportError(0, fmt.Errorf("postgres %s: %w", op, err))
}

// listArgs keeps the WHERE arguments separate so the count query can reuse
// them without the pagination arguments.
type listArgs struct {
	where []any
	page  []any
}

func (a listArgs) all() []any {
	return append(append([]any{}, a.where...), a.page...)
}

// buildListQuery translates q into a list query and a count query over
// table. Property names and values are always bound as parameters.
func buildListQuery(table string, q model.QuerySpec) (listSQL, countSQL string, args listArgs, err error) {
	var clauses []string
	param := func(v any) string {
		args.where = append(args.where, v)
		return "$" + strconv.Itoa(len(args.where))
	}

	for _, f := range q.Filters {
		if f.Fn != nil {
			continue
		}
		prop := param(f.Property)
		switch op := f.OperatorOrDefault(); op {
		case model.OpEq, model.OpNe, model.OpGt, model.OpGte, model.OpLt, model.OpLte:
			doc, mErr := json.Marshal(f.Value)
			if mErr != nil {
				return "", "", args, fmt.Errorf("filter %s: %w", f.Property, mErr)
			}
			val := param(string(doc))
			switch op {
			case model.OpEq:
				clauses = append(clauses, fmt.Sprintf("body->%s = %s::jsonb", prop, val))
			case model.OpNe:
				clauses = append(clauses, fmt.Sprintf("body->%s IS DISTINCT FROM %s::jsonb", prop, val))
			default:
				// Ordering only holds between values of the same JSON type.
				clauses = append(clauses, fmt.Sprintf(
					"(jsonb_typeof(body->%[1]s) = jsonb_typeof(%[2]s::jsonb) AND body->%[1]s %[3]s %[2]s::jsonb)",
					prop, val, string(op)))
			}
		case model.OpLike:
			val := param(escapeLike(fmt.Sprint(f.Value)))
			clauses = append(clauses, fmt.Sprintf("lower(body->>%s) LIKE '%%' || lower(%s) || '%%'", prop, val))
		case model.OpIn:
			list, ok := f.Value.([]any)
			if !ok {
				args.where = args.where[:len(args.where)-1]
				clauses = append(clauses, "FALSE")
				continue
			}
			docs := make([]string, len(list))
			for i, item := range list {
				b, mErr := json.Marshal(item)
				if mErr != nil {
					return "", "", args, fmt.Errorf("filter %s: %w", f.Property, mErr)
				}
				docs[i] = string(b)
			}
			clauses = append(clauses, fmt.Sprintf("body->%s = ANY(%s::jsonb[])", prop, param(docs)))
		default:
			// Unknown operators pass every record; drop the bound property.
			args.where = args.where[:len(args.where)-1]
		}
	}

	where := ""
	if len(clauses) > 0 {
		where = " WHERE " + strings.Join(clauses, " AND ")
	}
	countSQL = "SELECT count(*) FROM " + table + where

	var order []string
	for _, s := range q.Sorters {
		dir := "ASC"
		if s.Direction.Normalize() == model.DESC {
			dir = "DESC"
		}
		order = append(order, fmt.Sprintf("body->%s %s", param(s.Property), dir))
	}
	order = append(order, "created_at", "id")
	listSQL = "SELECT body FROM " + table + where + " ORDER BY " + strings.Join(order, ", ")

	// Sort properties were bound after the WHERE arguments; move them into
	// the pagination group so the count query sees only its own.
	nWhere := len(args.where) - len(q.Sorters)
	args.page = append(args.page, args.where[nWhere:]...)
	args.where = args.where[:nWhere]

	if q.PageSize > 0 {
		page := q.Page
		if page < 1 {
			page = 1
		}
		n := len(args.where) + len(args.page)
		listSQL += fmt.Sprintf(" LIMIT $%d OFFSET $%d", n+1, n+2)
		args.page = append(args.page, q.PageSize, (page-1)*q.PageSize)
	}
	return listSQL, countSQL, args, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
