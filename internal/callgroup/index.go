// Package callgroup coalesces calls made in quick succession into one
// grouped invocation.
//
// The first call after the previous group was sealed opens a grace window.
// Every call arriving before the window elapses joins the same group. When
// the window elapses the group is sealed, the group function runs once with
// all the calls, and the resolver it returns is applied to each call to
// produce that caller's individual answer.
//
//	g := callgroup.New(50*time.Millisecond, func(ctx context.Context, calls []int) (callgroup.Resolver[int, string], error) {
//		names, err := fetchAll(ctx, calls)
//		if err != nil {
//			return nil, err
//		}
//		return func(id int) (string, error) { return names[id], nil }, nil
//	}, logger)
//
//	name, err := g.Do(ctx, 42)
package callgroup
