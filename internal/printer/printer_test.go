package printer

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrinter(t *testing.T) {
	var buf bytes.Buffer
	ctx := NewContext(context.Background(), New(&buf))

	p := Ctx(ctx)
	p.Printf("plain %d", 1)
	p.Successf("saved %s", "draft")
	p.Errorf("failed")

	out := buf.String()
	assert.Contains(t, out, "plain 1\n")
	assert.Contains(t, out, "saved draft")
	assert.Contains(t, out, "failed")
}

func TestCtx_Default(t *testing.T) {
	assert.NotNil(t, Ctx(context.Background()))
}
