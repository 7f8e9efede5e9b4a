package sync

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/klauern/hubsync/internal/model"
	"github.com/klauern/hubsync/internal/remote"
)

func TestSession_LogOnce(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	sess := NewSession(SessionOptions{Logger: logger})

	err := sess.logOnce(sess.Logger, "failed", errors.New("boom"))
	wrapped := fmt.Errorf("outer: %w", err)
	again := sess.logOnce(sess.Logger, "failed again", wrapped)

	assert.Equal(t, 1, strings.Count(buf.String(), "boom"), "wrapped logged errors are not logged twice")
	assert.Same(t, wrapped, again)
	assert.Contains(t, buf.String(), "session="+sess.ID)
	assert.Nil(t, sess.logOnce(sess.Logger, "nothing", nil))
}

func TestSession_RetryMarks(t *testing.T) {
	sess := NewSession(SessionOptions{})
	assert.NotEmpty(t, sess.ID)
	assert.NotNil(t, sess.Observer)

	boom := errors.New("boom")
	sess.markRetry("a", boom)
	sess.addError()
	err, ok := sess.retryErr("a")
	assert.True(t, ok)
	assert.Same(t, boom, err)

	sess.Close()
	_, ok = sess.retryErr("a")
	assert.False(t, ok, "Close drops retry marks")
	assert.Equal(t, 0, sess.ErrorCount(), "Close resets the error count")
}

func TestDefaultDescriptors(t *testing.T) {
	descs := DefaultDescriptors()
	for _, k := range model.AllKinds() {
		d, ok := descs[k]
		if assert.True(t, ok, "missing descriptor for %s", k) {
			assert.Equal(t, k, d.Kind)
		}
	}

	pages, _ := DescriptorFor(model.Pages)
	assert.True(t, pages.PathBased)
	assert.True(t, pages.retryable(remote.NewError(http.StatusUnprocessableEntity, "missing parent")))
	assert.False(t, pages.retryable(remote.NewError(http.StatusUnprocessableEntity, "title too long")))

	renditions, _ := DescriptorFor(model.Renditions)
	assert.True(t, renditions.Immutable)
	assert.True(t, renditions.Capabilities.CreateOnly)

	types, _ := DescriptorFor(model.Types)
	assert.Contains(t, types.ignoreKeys(), "rev")
	libs, _ := DescriptorFor(model.Libraries)
	assert.True(t, libs.retryable(remote.NewError(http.StatusBadGateway, "")), "transient errors retry by default")
	assert.False(t, libs.retryable(errors.New("plain")))
}

func TestMultiObserver(t *testing.T) {
	var pushed []string
	a := ObserverFuncs{OnPushed: func(_ model.Kind, name string, _ model.Artifact) { pushed = append(pushed, "a:"+name) }}
	b := ObserverFuncs{OnPushed: func(_ model.Kind, name string, _ model.Artifact) { pushed = append(pushed, "b:"+name) }}

	obs := Multi(a, b, Nop)
	obs.Pushed(model.Content, "x", nil)
	obs.PullError(model.Content, "y", errors.New("ignored"))
	assert.Equal(t, []string{"a:x", "b:x"}, pushed)
}
