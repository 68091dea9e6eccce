package barcode

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/barcode-extractor/internal/command/commandtest"
	"github.com/spherical/barcode-extractor/internal/domain"
)

func TestZBarDecoder_Invocation(t *testing.T) {
	runner := &commandtest.Runner{Handler: commandtest.Output("EAN13:0123456789012\n")}
	dec := NewZBarDecoder("", runner, nil)

	got, err := dec.Decode(context.Background(), "/tmp/run/page-1.jpg")
	require.NoError(t, err)
	assert.Equal(t, []domain.Barcode{{Type: "EAN13", Data: "0123456789012"}}, got)

	calls := runner.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "zbarimg", calls[0].Name)
	assert.Equal(t, []string{"--raw", "-q", "/tmp/run/page-1.jpg"}, calls[0].Args)
}

func TestZBarDecoder_CustomBinary(t *testing.T) {
	runner := &commandtest.Runner{}
	dec := NewZBarDecoder("/opt/zbar/bin/zbarimg", runner, nil)

	_, err := dec.Decode(context.Background(), "page-1.jpg")
	require.NoError(t, err)
	assert.Equal(t, "/opt/zbar/bin/zbarimg", runner.Calls()[0].Name)
}

func TestZBarDecoder_NoSymbolsIsNotAnError(t *testing.T) {
	runner := &commandtest.Runner{Handler: commandtest.Fail(4, "", "")}
	dec := NewZBarDecoder("", runner, nil)

	got, err := dec.Decode(context.Background(), "page-1.jpg")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestZBarDecoder_EmptyOutputIsNotAnError(t *testing.T) {
	runner := &commandtest.Runner{Handler: commandtest.Output("\n")}
	dec := NewZBarDecoder("", runner, nil)

	got, err := dec.Decode(context.Background(), "page-1.jpg")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestZBarDecoder_Failure(t *testing.T) {
	runner := &commandtest.Runner{Handler: commandtest.Fail(2, "", "ERROR: unable to open image")}
	dec := NewZBarDecoder("", runner, nil)

	_, err := dec.Decode(context.Background(), "page-1.jpg")
	require.Error(t, err)
	assert.True(t, domain.IsType(err, domain.ErrorTypeDecode))
	assert.Contains(t, err.Error(), "unable to open image")
}

func TestZBarDecoder_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	runner := &commandtest.Runner{Handler: commandtest.Fail(-1, "", "")}
	dec := NewZBarDecoder("", runner, nil)

	_, err := dec.Decode(ctx, "page-1.jpg")
	assert.ErrorIs(t, err, context.Canceled)
}
