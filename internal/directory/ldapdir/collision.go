package ldapdir

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-ldap/ldap/v3"
)

// CollisionSource answers username-availability probes against the directory:
// a candidate is taken when any of the configured username attributes carries
// it anywhere under the base DN.
type CollisionSource struct {
	directory *Directory
}

// Collisions returns the availability probe for this directory. Requires at
// least one username attribute in the configuration.
func (d *Directory) Collisions() (*CollisionSource, error) {
	if len(d.cfg.UsernameAttrs) == 0 {
		return nil, fmt.Errorf("no username attributes configured")
	}
	return &CollisionSource{directory: d}, nil
}

func (c *CollisionSource) Taken(ctx context.Context, candidate string) (bool, error) {
	escaped := ldap.EscapeFilter(candidate)
	clauses := make([]string, len(c.directory.cfg.UsernameAttrs))
	for i, attr := range c.directory.cfg.UsernameAttrs {
		clauses[i] = fmt.Sprintf("(%s=%s)", attr, escaped)
	}
	filter := "(|" + strings.Join(clauses, "") + ")"

	entries, err := c.directory.subtreeSearch(ctx, filter, nil)
	if err != nil {
		return false, fmt.Errorf("probe %q: %w", candidate, err)
	}
	return len(entries) > 0, nil
}
