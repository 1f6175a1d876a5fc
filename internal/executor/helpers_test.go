package executor_test

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"

	"github.com/hanpama/reflectgraph/internal/executor"
	"github.com/hanpama/reflectgraph/internal/executor/executortest"
	"github.com/hanpama/reflectgraph/internal/language"
	"github.com/hanpama/reflectgraph/internal/schema"
)

// mustSchema builds sch from SDL. Root fields come out async and all others
// sync; coordinates listed in async are switched to async as well.
func mustSchema(t *testing.T, sdl string, async ...string) *schema.Schema {
	t.Helper()
	sch, err := schema.BuildFromSDL(sdl)
	require.NoError(t, err)
	for _, coord := range async {
		typeName, fieldName, _ := strings.Cut(coord, ".")
		f := sch.Types[typeName].Field(fieldName)
		require.NotNil(t, f, coord)
		f.SetAsync(true)
	}
	return sch
}

func mustParse(t *testing.T, query string) *language.QueryDocument {
	t.Helper()
	doc, err := language.ParseQuery(query)
	require.NoError(t, err)
	return doc
}

func execute(t *testing.T, rt executor.Runtime, sch *schema.Schema, query string, vars map[string]any) *executor.ExecutionResult {
	t.Helper()
	return executor.NewExecutor(rt, sch).ExecuteRequest(context.Background(), mustParse(t, query), "", vars, nil)
}

func requireResult(t *testing.T, want, got *executor.ExecutionResult) {
	t.Helper()
	if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
		t.Fatalf("result mismatch (-want +got):\n%s", diff)
	}
}

// trace renders recorded calls as "kind Type.field #batch".
func trace(rt *executortest.Runtime) []string {
	var out []string
	for _, c := range rt.Calls() {
		line := fmt.Sprintf("%s %s.%s", c.Kind, c.ObjectType, c.Field)
		if c.Batch > 0 {
			line += fmt.Sprintf(" #%d", c.Batch)
		}
		out = append(out, line)
	}
	return out
}

// key resolves a field to source[name].
func key(name string) executortest.Resolver {
	return func(_ context.Context, source any, _ map[string]any) (any, error) {
		return source.(map[string]any)[name], nil
	}
}

type obj = map[string]any
