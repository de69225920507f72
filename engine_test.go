package doclink

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/doclink/internal/refstore"
)

func metadataWith(file string, refs ...Reference) *Metadata {
	return &Metadata{
		Files:    map[string]*FileRefs{file: refstore.NewFileRefs(refs...)},
		NotFound: []NotFound{},
	}
}

func waitForState(t *testing.T, e *Engine, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return e.Status().State == want },
		2*time.Second, 5*time.Millisecond, "state never became %s", want)
}

func TestEngine_RefreshApplies(t *testing.T) {
	t.Parallel()
	f := newFakeClient()
	rec := &recorder{}
	e := newTestEngine(t, f, WithListener(rec))

	assert.Equal(t, Idle, e.Status().State)
	g := refreshAndStart(t, e, f, "/p")
	assert.Equal(t, Scanning, e.Status().State)

	md := metadataWith("a.go", found("h1", 0, 10, ""))
	md.NotFound = []NotFound{{ID: "x", Reason: "symbol \"Y\" not found in b.go"}}
	f.complete(g, md, nil)
	e.Wait()

	st := e.Status()
	assert.Equal(t, Ready, st.State)
	assert.Equal(t, uint64(1), st.Generation)
	assert.Equal(t, 1, st.NotFound)
	assert.Equal(t, "/p", st.Root)

	refs, ok := e.store.Get("a.go")
	require.True(t, ok)
	assert.Equal(t, []string{"h1"}, refs.IDs())

	assert.Equal(t, 1, rec.succeeded)
	require.Len(t, rec.notFound, 1)
	assert.Equal(t, "x", rec.notFound[0][0].ID)
}

func TestEngine_LatestGenerationWins(t *testing.T) {
	t.Parallel()

	t.Run("newer completes first", func(t *testing.T) {
		t.Parallel()
		f := newFakeClient()
		rec := &recorder{}
		e := newTestEngine(t, f, WithListener(rec))

		g1 := refreshAndStart(t, e, f, "/p")
		g2 := refreshAndStart(t, e, f, "/p")

		f.complete(g2, metadataWith("a.go", found("new", 0, 1, "")), nil)
		waitForState(t, e, Ready)
		f.complete(g1, metadataWith("a.go", found("old", 0, 1, "")), nil)
		e.Wait()

		refs, _ := e.store.Get("a.go")
		assert.Equal(t, []string{"new"}, refs.IDs())
		assert.Equal(t, uint64(2), e.store.Snapshot().Generation())
		assert.Equal(t, 1, rec.succeeded)
	})

	t.Run("older completes first", func(t *testing.T) {
		t.Parallel()
		f := newFakeClient()
		rec := &recorder{}
		e := newTestEngine(t, f, WithListener(rec))

		g1 := refreshAndStart(t, e, f, "/p")
		g2 := refreshAndStart(t, e, f, "/p")

		f.complete(g1, metadataWith("a.go", found("old", 0, 1, "")), nil)
		f.complete(g2, metadataWith("a.go", found("new", 0, 1, "")), nil)
		e.Wait()

		refs, _ := e.store.Get("a.go")
		assert.Equal(t, []string{"new"}, refs.IDs())
		assert.Equal(t, 1, rec.succeeded)
	})
}

func TestEngine_FailureKeepsStore(t *testing.T) {
	t.Parallel()
	f := newFakeClient()
	rec := &recorder{}
	e := newTestEngine(t, f, WithListener(rec))

	g := refreshAndStart(t, e, f, "/p")
	f.complete(g, metadataWith("a.go", found("h1", 0, 1, "")), nil)
	e.Wait()

	g = refreshAndStart(t, e, f, "/p")
	f.complete(g, nil, &ScanError{Payload: map[string]any{
		"step": "config loader",
		"err":  map[string]any{"msg": "bad settings"},
	}})
	e.Wait()

	refs, ok := e.store.Get("a.go")
	require.True(t, ok)
	assert.Equal(t, []string{"h1"}, refs.IDs(), "stale data stays visible")

	st := e.Status()
	assert.Equal(t, Failed, st.State)
	require.Len(t, st.Errors, 1)
	assert.Equal(t, "config loader", st.Errors[0].Step)
	assert.Equal(t, "bad settings", st.Errors[0].Message)

	require.Len(t, rec.failed, 1)
	assert.Equal(t, "bad settings", rec.failed[0][0].Message)

	// A later success clears the error state.
	g = refreshAndStart(t, e, f, "/p")
	f.complete(g, metadataWith("a.go"), nil)
	e.Wait()
	assert.Equal(t, Ready, e.Status().State)
	assert.Empty(t, e.Status().Errors)
}

func TestEngine_SupersededFailureIsDropped(t *testing.T) {
	t.Parallel()
	f := newFakeClient()
	rec := &recorder{}
	e := newTestEngine(t, f, WithListener(rec))

	g1 := refreshAndStart(t, e, f, "/p")
	g2 := refreshAndStart(t, e, f, "/p")
	f.complete(g1, nil, errors.New("boom"))
	f.complete(g2, metadataWith("a.go"), nil)
	e.Wait()

	assert.Empty(t, rec.failed)
	assert.Equal(t, Ready, e.Status().State)
}

func TestEngine_EmptyScan(t *testing.T) {
	t.Parallel()
	f := newFakeClient()
	e := newTestEngine(t, f, WithTextSource(memText{"a.go": "x\n"}.source()))

	g := refreshAndStart(t, e, f, "/p")
	f.complete(g, &Metadata{}, nil)
	e.Wait()

	assert.Empty(t, e.store.Snapshot().Files())
	assert.Empty(t, e.Query().NotFound())
	assert.Empty(t, e.Query().ReferencesEnclosing("a.go", 0))
	assert.Equal(t, Ready, e.Status().State)
}

func TestEngine_ProjectSwitchClears(t *testing.T) {
	t.Parallel()
	f := newFakeClient()
	e := newTestEngine(t, f)

	g := refreshAndStart(t, e, f, "/one")
	f.complete(g, metadataWith("a.go", found("h1", 0, 1, "")), nil)
	e.Wait()

	g = refreshAndStart(t, e, f, "/two")
	_, ok := e.store.Get("a.go")
	assert.False(t, ok, "index of the previous project is dropped at once")

	f.complete(g, metadataWith("b.go"), nil)
	e.Wait()
	assert.Equal(t, []string{"b.go"}, e.store.Snapshot().Files())
}

func TestEngine_ProjectSwitchDefersLazyLoads(t *testing.T) {
	t.Parallel()
	f := newFakeClient()
	f.fetch["only_in_one.go"] = refstore.NewFileRefs(found("old", 0, 1, ""))
	e := newTestEngine(t, f, WithTextSource(memText{"only_in_one.go": oneByteLines}.source()))

	g := refreshAndStart(t, e, f, "/one")
	f.complete(g, metadataWith("a.go"), nil)
	e.Wait()

	g = refreshAndStart(t, e, f, "/two")
	assert.Empty(t, e.Query().References("only_in_one.go"))
	assert.Equal(t, 0, f.fetches(), "the scanner may still hold the previous project")

	f.complete(g, nil, &ScanError{Payload: "boom"})
	e.Wait()
	assert.Empty(t, e.Query().References("only_in_one.go"))
	assert.Equal(t, 0, f.fetches(), "a failed scan of the new root keeps loads off")

	g = refreshAndStart(t, e, f, "/two")
	f.complete(g, metadataWith("b.go"), nil)
	e.Wait()
	assert.Equal(t, []string{"old"}, ids(e.Query().References("only_in_one.go")))
	assert.Equal(t, 1, f.fetches())
}

func TestEngine_ScansTaggedWithGeneration(t *testing.T) {
	t.Parallel()
	f := newFakeClient()
	e := newTestEngine(t, f)

	g1 := refreshAndStart(t, e, f, "/p")
	g2 := refreshAndStart(t, e, f, "/p")
	f.complete(g1, nil, nil)
	f.complete(g2, nil, nil)
	e.Wait()

	f.mu.Lock()
	defer f.mu.Unlock()
	assert.Equal(t, []uint64{1, 2}, f.gens)
}

func TestEngine_CloseCancelsScan(t *testing.T) {
	t.Parallel()
	f := newFakeClient()
	rec := &recorder{}
	e := New(f, WithListener(rec))

	refreshAndStart(t, e, f, "/p")
	require.NoError(t, e.Close())
	require.NoError(t, e.Close())

	assert.Empty(t, rec.failed, "a cancelled scan is not reported")
	e.Refresh("/p")
	assert.Equal(t, uint64(1), e.Generation())
}

func TestState_String(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "scanning", Scanning.String())
	assert.Equal(t, "ready", Ready.String())
	assert.Equal(t, "failed", Failed.String())
	assert.Equal(t, "unknown", State(42).String())
}
