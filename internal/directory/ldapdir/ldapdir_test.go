package ldapdir

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dirsync/pkg/platform/sentinel"
)

type fakeConn struct {
	lastFilter string
	lastAttrs  []string
	results    []*ldap.Entry
	searchErr  error
	addErr     error
	added      *ldap.AddRequest
}

func (f *fakeConn) SearchWithPaging(req *ldap.SearchRequest, _ uint32) (*ldap.SearchResult, error) {
	f.lastFilter = req.Filter
	f.lastAttrs = req.Attributes
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return &ldap.SearchResult{Entries: f.results}, nil
}

func (f *fakeConn) Search(req *ldap.SearchRequest) (*ldap.SearchResult, error) {
	f.lastFilter = req.Filter
	f.lastAttrs = req.Attributes
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return &ldap.SearchResult{Entries: f.results}, nil
}

func (f *fakeConn) Add(req *ldap.AddRequest) error {
	f.added = req
	return f.addErr
}

func newTestDirectory(t *testing.T, conn *fakeConn) *Directory {
	t.Helper()
	dir, err := New(conn, Config{
		BaseDN:        "ou=people,dc=example,dc=org",
		UniqueIDAttr:  "entryUUID",
		UsernameAttrs: []string{"uid", "sAMAccountName"},
	})
	require.NoError(t, err)
	return dir
}

func ldapEntry(dn, uniqueID string, attrs map[string][]string) *ldap.Entry {
	all := map[string][]string{"entryUUID": {uniqueID}}
	for k, v := range attrs {
		all[k] = v
	}
	return ldap.NewEntry(dn, all)
}

func TestByUniqueID(t *testing.T) {
	conn := &fakeConn{results: []*ldap.Entry{
		ldapEntry("cn=abk,ou=people,dc=example,dc=org", "uid-1", map[string][]string{
			"employeeNumber": {"0101011234"},
			"mail":           {"abk@example.org", "abk@alias.example.org"},
		}),
	}}
	dir := newTestDirectory(t, conn)

	entry, err := dir.ByUniqueID(context.Background(), "uid-1", []string{"employeeNumber", "mail"})
	require.NoError(t, err)
	assert.Equal(t, "(entryUUID=uid-1)", conn.lastFilter)
	assert.Equal(t, "uid-1", entry.UniqueID)
	assert.Equal(t, "cn=abk,ou=people,dc=example,dc=org", entry.DN)

	number, ok := entry.Attr("employeeNumber").One()
	require.True(t, ok)
	assert.Equal(t, "0101011234", number)
	assert.Len(t, entry.Attr("mail").Values(), 2)
	assert.True(t, entry.Attr("entryUUID").IsAbsent())
}

func TestByUniqueIDNotFound(t *testing.T) {
	dir := newTestDirectory(t, &fakeConn{})

	_, err := dir.ByUniqueID(context.Background(), "uid-gone", nil)
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestSearchEqualEscapesValue(t *testing.T) {
	conn := &fakeConn{}
	dir := newTestDirectory(t, conn)

	_, err := dir.SearchEqual(context.Background(), "cn", "a*(b)", nil)
	require.NoError(t, err)
	assert.Equal(t, `(cn=a\2a\28b\29)`, conn.lastFilter)
}

func TestSearchAlwaysFetchesUniqueIDAttr(t *testing.T) {
	conn := &fakeConn{}
	dir := newTestDirectory(t, conn)

	_, err := dir.SearchEqual(context.Background(), "cn", "x", []string{"mail", "entryuuid"})
	require.NoError(t, err)
	assert.Equal(t, []string{"entryUUID", "mail"}, conn.lastAttrs)
}

func TestAddMapsExistsToConflict(t *testing.T) {
	conn := &fakeConn{addErr: ldap.NewError(ldap.LDAPResultEntryAlreadyExists, errors.New("exists"))}
	dir := newTestDirectory(t, conn)

	err := dir.Add(context.Background(), "cn=abk,ou=people,dc=example,dc=org", map[string][]string{
		"objectClass": {"inetOrgPerson"},
		"uid":         {"aag2"},
	})
	assert.ErrorIs(t, err, sentinel.ErrConflict)
	require.NotNil(t, conn.added)
	assert.Equal(t, "cn=abk,ou=people,dc=example,dc=org", conn.added.DN)
}

func TestCollisionSource(t *testing.T) {
	conn := &fakeConn{results: []*ldap.Entry{ldapEntry("cn=x", "uid-1", nil)}}
	dir := newTestDirectory(t, conn)

	source, err := dir.Collisions()
	require.NoError(t, err)

	taken, err := source.Taken(context.Background(), "aag2")
	require.NoError(t, err)
	assert.True(t, taken)
	assert.Equal(t, "(|(uid=aag2)(sAMAccountName=aag2))", conn.lastFilter)

	conn.results = nil
	taken, err = source.Taken(context.Background(), "aag3")
	require.NoError(t, err)
	assert.False(t, taken)
}

func TestChangedSinceFilter(t *testing.T) {
	conn := &fakeConn{}
	dir := newTestDirectory(t, conn)

	since := time.Date(2026, time.August, 24, 10, 30, 0, 0, time.UTC)
	_, err := dir.ChangedSince(context.Background(), since, nil)
	require.NoError(t, err)
	assert.Equal(t, "(modifyTimestamp>=20260824103000Z)", conn.lastFilter)
}
