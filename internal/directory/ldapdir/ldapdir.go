// Package ldapdir adapts an LDAP directory to the engine's directory ports.
// Searches page through SearchWithPaging so result sets larger than the
// server's size limit come back complete; entry snapshots keep the unique-id
// attribute separate from the mutable DN.
package ldapdir

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-ldap/ldap/v3"

	"dirsync/internal/domain"
	"dirsync/pkg/platform/sentinel"
)

// Conn is the slice of *ldap.Conn the adapter needs. Narrowed so tests can
// substitute a fake without a directory server.
type Conn interface {
	SearchWithPaging(req *ldap.SearchRequest, pagingSize uint32) (*ldap.SearchResult, error)
	Search(req *ldap.SearchRequest) (*ldap.SearchResult, error)
	Add(req *ldap.AddRequest) error
}

// Config locates entries and names the attributes with engine-level meaning.
type Config struct {
	// BaseDN roots every subtree search.
	BaseDN string
	// UniqueIDAttr is the immutable per-entry identifier attribute,
	// e.g. entryUUID or objectGUID.
	UniqueIDAttr string
	// UsernameAttrs are the attributes the collision source probes,
	// e.g. sAMAccountName and uid.
	UsernameAttrs []string
	// PageSize bounds each search page. Zero means 500.
	PageSize uint32
}

// Directory is the LDAP-backed implementation of the engine's directory port.
type Directory struct {
	conn   Conn
	cfg    Config
	logger *slog.Logger
}

type Option func(*Directory)

func WithLogger(logger *slog.Logger) Option {
	return func(d *Directory) { d.logger = logger }
}

func New(conn Conn, cfg Config, opts ...Option) (*Directory, error) {
	if conn == nil {
		return nil, fmt.Errorf("ldap connection is required")
	}
	if cfg.BaseDN == "" {
		return nil, fmt.Errorf("base DN is required")
	}
	if cfg.UniqueIDAttr == "" {
		cfg.UniqueIDAttr = "entryUUID"
	}
	if cfg.PageSize == 0 {
		cfg.PageSize = 500
	}

	d := &Directory{conn: conn, cfg: cfg, logger: slog.Default()}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// SearchEqual returns every entry whose attribute equals value. The value is
// filter-escaped, so caller input cannot widen the search.
func (d *Directory) SearchEqual(ctx context.Context, attribute, value string, attrs []string) ([]domain.Entry, error) {
	filter := fmt.Sprintf("(%s=%s)", attribute, ldap.EscapeFilter(value))
	return d.subtreeSearch(ctx, filter, attrs)
}

// ByUniqueID reads the entry carrying the given unique id, or
// sentinel.ErrNotFound when the id no longer resolves anywhere under the
// base DN.
func (d *Directory) ByUniqueID(ctx context.Context, uniqueID string, attrs []string) (domain.Entry, error) {
	filter := fmt.Sprintf("(%s=%s)", d.cfg.UniqueIDAttr, ldap.EscapeFilter(uniqueID))
	entries, err := d.subtreeSearch(ctx, filter, attrs)
	if err != nil {
		return domain.Entry{}, err
	}
	switch len(entries) {
	case 0:
		return domain.Entry{}, sentinel.ErrNotFound
	case 1:
		return entries[0], nil
	default:
		return domain.Entry{}, fmt.Errorf("unique id %q matches %d entries", uniqueID, len(entries))
	}
}

// ByDN reads one entry by its distinguished name.
func (d *Directory) ByDN(ctx context.Context, dn string, attrs []string) (domain.Entry, error) {
	if err := ctx.Err(); err != nil {
		return domain.Entry{}, err
	}
	req := ldap.NewSearchRequest(
		dn, ldap.ScopeBaseObject, ldap.NeverDerefAliases, 0, 0, false,
		"(objectClass=*)", d.requestAttrs(attrs), nil,
	)
	result, err := d.conn.Search(req)
	if ldap.IsErrorWithCode(err, ldap.LDAPResultNoSuchObject) {
		return domain.Entry{}, sentinel.ErrNotFound
	}
	if err != nil {
		return domain.Entry{}, fmt.Errorf("read %s: %w", dn, err)
	}
	if len(result.Entries) == 0 {
		return domain.Entry{}, sentinel.ErrNotFound
	}
	return d.decode(result.Entries[0]), nil
}

// ChangedSince returns the entries modified at or after the given time,
// using the operational modifyTimestamp attribute.
func (d *Directory) ChangedSince(ctx context.Context, since time.Time, attrs []string) ([]domain.Entry, error) {
	filter := fmt.Sprintf("(modifyTimestamp>=%s)", since.UTC().Format("20060102150405Z"))
	return d.subtreeSearch(ctx, filter, attrs)
}

// Add creates a new entry. The caller owns DN construction; attribute order
// follows map iteration and is irrelevant to the server.
func (d *Directory) Add(ctx context.Context, dn string, attributes map[string][]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	req := ldap.NewAddRequest(dn, nil)
	for name, values := range attributes {
		req.Attribute(name, values)
	}
	if err := d.conn.Add(req); err != nil {
		if ldap.IsErrorWithCode(err, ldap.LDAPResultEntryAlreadyExists) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("add %s: %w", dn, err)
	}
	d.logger.Info("created directory entry", "dn", dn)
	return nil
}

func (d *Directory) subtreeSearch(ctx context.Context, filter string, attrs []string) ([]domain.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	req := ldap.NewSearchRequest(
		d.cfg.BaseDN, ldap.ScopeWholeSubtree, ldap.NeverDerefAliases, 0, 0, false,
		filter, d.requestAttrs(attrs), nil,
	)
	result, err := d.conn.SearchWithPaging(req, d.cfg.PageSize)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", filter, err)
	}

	entries := make([]domain.Entry, 0, len(result.Entries))
	for _, raw := range result.Entries {
		entries = append(entries, d.decode(raw))
	}
	return entries, nil
}

// requestAttrs always fetches the unique-id attribute on top of whatever the
// caller asked for, so every snapshot carries its immutable handle.
func (d *Directory) requestAttrs(attrs []string) []string {
	out := make([]string, 0, len(attrs)+1)
	out = append(out, d.cfg.UniqueIDAttr)
	for _, attr := range attrs {
		if !strings.EqualFold(attr, d.cfg.UniqueIDAttr) {
			out = append(out, attr)
		}
	}
	return out
}

func (d *Directory) decode(raw *ldap.Entry) domain.Entry {
	entry := domain.Entry{
		DN:    raw.DN,
		Attrs: make(map[string]domain.Value, len(raw.Attributes)),
	}
	for _, attr := range raw.Attributes {
		if strings.EqualFold(attr.Name, d.cfg.UniqueIDAttr) {
			if len(attr.Values) > 0 {
				entry.UniqueID = attr.Values[0]
			}
			continue
		}
		entry.Attrs[attr.Name] = domain.List(attr.Values...)
	}
	return entry
}
