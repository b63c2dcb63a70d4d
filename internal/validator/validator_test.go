package validator

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/learnframe/learnframe-backend/internal/model"
)

func init() {
	gin.SetMode(gin.TestMode)
	Setup()
}

func bindBody(t *testing.T, body string, dst any) map[string]string {
	t.Helper()
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	return Bind(c, dst)
}

func TestBindWalletChallenge(t *testing.T) {
	var ok model.WalletChallengeRequest
	require.Nil(t, bindBody(t, `{"address":"0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed"}`, &ok))

	var bad model.WalletChallengeRequest
	fields := bindBody(t, `{"address":"0x1234"}`, &bad)
	require.Contains(t, fields, "address")
	require.Contains(t, fields["address"], "valid wallet address")
}

func TestBindWalletLoginSignature(t *testing.T) {
	const addr = `"address":"0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed"`
	sig := "0x" + strings.Repeat("ab", 65)

	var ok model.WalletLoginRequest
	require.Nil(t, bindBody(t, `{`+addr+`,"signature":"`+sig+`"}`, &ok))

	var missing model.WalletLoginRequest
	require.Contains(t, bindBody(t, `{`+addr+`}`, &missing), "signature")

	var short model.WalletLoginRequest
	require.Contains(t, bindBody(t, `{`+addr+`,"signature":"0xabcd"}`, &short), "signature")

	var notHex model.WalletLoginRequest
	require.Contains(t, bindBody(t, `{`+addr+`,"signature":"0x`+strings.Repeat("zz", 65)+`"}`, &notHex), "signature")
}

func TestBindSubmitAnswersRequiresTen(t *testing.T) {
	var req model.SubmitAnswersRequest
	fields := bindBody(t, `{"answers":["a","b"]}`, &req)
	require.Contains(t, fields, "answers")

	req = model.SubmitAnswersRequest{}
	require.Nil(t, bindBody(t, `{"answers":["a","b","c","d","e","f","g","h","i","j"]}`, &req))
	require.Len(t, req.Answers, 10)
}

func TestBindSyntaxError(t *testing.T) {
	var req model.SubmitAnswersRequest
	fields := bindBody(t, `{"answers":`, &req)
	require.Contains(t, fields, "detail")
}
