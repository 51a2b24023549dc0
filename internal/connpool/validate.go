package connpool

import (
	"context"
	"fmt"
)

// Validate runs the configured liveness probe against proxy (spec §4.C
// test_before_use / §9 keepalive). When TestQuerySQL is empty, validation
// is a no-op success — matching the teacher's "validation query optional"
// behavior, since some drivers/tables may not support a cheap probe.
// Exported so the maintenance scheduler can reuse the same probe for its
// keepalive pass.
func (p *Pool) Validate(ctx context.Context, proxy *Proxy) error {
	if p.cfg.TestQuerySQL == "" {
		return nil
	}
	row := proxy.DB().QueryRowContext(ctx, p.cfg.TestQuerySQL)
	var discard any
	if err := row.Scan(&discard); err != nil {
		return fmt.Errorf("validation query failed: %w", err)
	}
	return nil
}
