// Package testutil holds shared test doubles.
package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/chrispiasecki/pptb-auditing-manager/internal/domain"
)

// DataClient is a function-field test double for domain.DataClient. Unset
// fields fail loudly so tests only exercise the calls they expect. Call
// counts are safe for concurrent use.
type DataClient struct {
	RunQueryFunc       func(ctx context.Context, query string) (domain.RawDocument, error)
	InvokeFunctionFunc func(ctx context.Context, name string, params map[string]any) (domain.RawDocument, error)
	LookupByIDFunc     func(ctx context.Context, table, id string, fields []string) (domain.RawDocument, error)

	mu            sync.Mutex
	runQueryCalls []string
	invokeCalls   []string
	lookupCalls   []string
}

// RunQuery implements domain.DataClient.
func (c *DataClient) RunQuery(ctx context.Context, query string) (domain.RawDocument, error) {
	c.mu.Lock()
	c.runQueryCalls = append(c.runQueryCalls, query)
	c.mu.Unlock()
	if c.RunQueryFunc == nil {
		return nil, fmt.Errorf("testutil: unexpected RunQuery call")
	}
	return c.RunQueryFunc(ctx, query)
}

// InvokeFunction implements domain.DataClient.
func (c *DataClient) InvokeFunction(ctx context.Context, name string, params map[string]any) (domain.RawDocument, error) {
	c.mu.Lock()
	c.invokeCalls = append(c.invokeCalls, name)
	c.mu.Unlock()
	if c.InvokeFunctionFunc == nil {
		return nil, fmt.Errorf("testutil: unexpected InvokeFunction call %q", name)
	}
	return c.InvokeFunctionFunc(ctx, name, params)
}

// LookupByID implements domain.DataClient.
func (c *DataClient) LookupByID(ctx context.Context, table, id string, fields []string) (domain.RawDocument, error) {
	c.mu.Lock()
	c.lookupCalls = append(c.lookupCalls, table+"/"+id)
	c.mu.Unlock()
	if c.LookupByIDFunc == nil {
		return nil, fmt.Errorf("testutil: unexpected LookupByID call %s/%s", table, id)
	}
	return c.LookupByIDFunc(ctx, table, id, fields)
}

// RunQueryCalls returns the queries passed to RunQuery so far.
func (c *DataClient) RunQueryCalls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.runQueryCalls...)
}

// InvokeCalls returns the function names passed to InvokeFunction so far.
func (c *DataClient) InvokeCalls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.invokeCalls...)
}

// LookupCalls returns the table/id pairs passed to LookupByID so far.
func (c *DataClient) LookupCalls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.lookupCalls...)
}
