package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/voucher-ledger/internal/shared"
)

func TestRespondErrorMapsKinds(t *testing.T) {
	cases := []struct {
		err    error
		status int
		detail string
	}{
		{fmt.Errorf("wrap: %w", shared.Validation("amount must be positive")), http.StatusBadRequest, "wrap: amount must be positive"},
		{shared.Conflict("duplicate voucher number"), http.StatusConflict, "duplicate voucher number"},
		{shared.NotFound("voucher not found"), http.StatusNotFound, "voucher not found"},
		{shared.Configuration("CASH missing"), http.StatusInternalServerError, "CASH missing"},
		{errors.New("db exploded"), http.StatusInternalServerError, ""},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		RespondError(rec, tc.err)
		require.Equal(t, tc.status, rec.Code)
		require.Equal(t, tc.status, StatusFor(tc.err))
		var body ProblemDetail
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.Equal(t, tc.detail, body.Detail)
	}
}
