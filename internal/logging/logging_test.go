package logging_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/querysync"
	"github.com/unkn0wn-root/querysync/internal/config"
	"github.com/unkn0wn-root/querysync/internal/logging"
)

func TestEveryDriverWritesAtLevel(t *testing.T) {
	for _, driver := range []string{"slog", "zap", "logrus"} {
		t.Run(driver, func(t *testing.T) {
			var buf bytes.Buffer
			st, err := logging.New(config.Log{Driver: driver, Level: "warn", Format: "json"}, &buf, "storefront")
			require.NoError(t, err)

			st.Logger.Info("hidden", nil)
			st.Logger.Warn("order fetch failed", querysync.Fields{"key": `["orders"]`})
			require.NoError(t, st.Sync())

			out := buf.String()
			assert.NotContains(t, out, "hidden")
			assert.Contains(t, out, "order fetch failed")
			assert.Contains(t, out, "storefront")
		})
	}
}

func TestUnknownDriver(t *testing.T) {
	_, err := logging.New(config.Log{Driver: "glog"}, &bytes.Buffer{}, "")
	assert.Error(t, err)
}
