package collab

import (
	"context"
	"errors"
	"testing"

	"github.com/Iblal/cowrite-server/internal/auth"
	"github.com/Iblal/cowrite-server/internal/documents"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const (
	testSigningSecret = "collab-secret"
	testDocumentName  = "42"
)

type resolverStub struct {
	levels map[int64]documents.AccessLevel
	err    error
	calls  int
}

func (r *resolverStub) Resolve(_ context.Context, userID, documentID int64) (documents.AccessLevel, error) {
	r.calls++
	if r.err != nil {
		return documents.AccessNone, r.err
	}
	if documentID != 42 {
		return documents.AccessNone, documents.ErrDocumentNotFound
	}
	level, ok := r.levels[userID]
	if !ok {
		return documents.AccessNone, documents.ErrForbidden
	}
	return level, nil
}

func signToken(t *testing.T, secret string, userID int64) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"id": userID})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func newTestAuthorizer(t *testing.T, resolver AccessResolver) *SessionAuthorizer {
	t.Helper()
	verifier, err := auth.NewCredentialVerifier(auth.CredentialVerifierConfig{SigningSecret: []byte(testSigningSecret)})
	require.NoError(t, err)
	authorizer, err := NewSessionAuthorizer(verifier, resolver, nil, nil)
	require.NoError(t, err)
	return authorizer
}

func TestAuthorizeAdmissionScenarios(t *testing.T) {
	resolver := &resolverStub{levels: map[int64]documents.AccessLevel{
		1: documents.AccessOwner,
		2: documents.AccessWrite,
		3: documents.AccessRead,
	}}
	authorizer := newTestAuthorizer(t, resolver)

	testCases := []struct {
		name         string
		request      AdmissionRequest
		wantReadOnly bool
		wantAccess   documents.AccessLevel
		wantReason   string
	}{
		{name: "owner", request: AdmissionRequest{Token: signToken(t, testSigningSecret, 1), DocumentName: testDocumentName}, wantAccess: documents.AccessOwner},
		{name: "writer", request: AdmissionRequest{Token: signToken(t, testSigningSecret, 2), DocumentName: testDocumentName}, wantAccess: documents.AccessWrite},
		{name: "reader", request: AdmissionRequest{Token: signToken(t, testSigningSecret, 3), DocumentName: testDocumentName}, wantAccess: documents.AccessRead, wantReadOnly: true},
		{name: "unrelated", request: AdmissionRequest{Token: signToken(t, testSigningSecret, 4), DocumentName: testDocumentName}, wantReason: ReasonNotAuthorized},
		{name: "wrong-key", request: AdmissionRequest{Token: signToken(t, "other-secret", 1), DocumentName: testDocumentName}, wantReason: ReasonInvalidToken},
		{name: "missing-document", request: AdmissionRequest{Token: signToken(t, testSigningSecret, 1), DocumentName: "43"}, wantReason: ReasonDocumentNotFound},
		{name: "non-numeric-document", request: AdmissionRequest{Token: signToken(t, testSigningSecret, 1), DocumentName: "notes"}, wantReason: ReasonDocumentNotFound},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			session, err := authorizer.Authorize(context.Background(), testCase.request)
			if testCase.wantReason != "" {
				var admissionErr *AdmissionError
				require.ErrorAs(t, err, &admissionErr)
				require.Equal(t, testCase.wantReason, admissionErr.Reason)
				require.Equal(t, SessionContext{}, session)
				return
			}
			require.NoError(t, err)
			require.Equal(t, testCase.wantAccess, session.Access)
			require.Equal(t, testCase.wantReadOnly, session.ReadOnly)
			require.Equal(t, int64(42), session.DocumentID)
			require.Equal(t, !testCase.wantReadOnly, session.CanWrite())
		})
	}
}

func TestAuthorizeMissingTokenSkipsDocumentLookup(t *testing.T) {
	resolver := &resolverStub{levels: map[int64]documents.AccessLevel{1: documents.AccessOwner}}
	authorizer := newTestAuthorizer(t, resolver)

	_, err := authorizer.Authorize(context.Background(), AdmissionRequest{DocumentName: testDocumentName})

	var admissionErr *AdmissionError
	require.ErrorAs(t, err, &admissionErr)
	require.Equal(t, ReasonNotAuthorized, admissionErr.Reason)
	require.Equal(t, StageStart, admissionErr.Stage)
	require.ErrorIs(t, err, auth.ErrMissingToken)
	require.Zero(t, resolver.calls)
}

func TestAuthorizeTokenWithoutSubjectIsInvalid(t *testing.T) {
	resolver := &resolverStub{}
	authorizer := newTestAuthorizer(t, resolver)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"email": "a@example.com"})
	signed, err := token.SignedString([]byte(testSigningSecret))
	require.NoError(t, err)

	_, err = authorizer.Authorize(context.Background(), AdmissionRequest{Token: signed, DocumentName: testDocumentName})
	var admissionErr *AdmissionError
	require.ErrorAs(t, err, &admissionErr)
	require.Equal(t, ReasonInvalidToken, admissionErr.Reason)
	require.Zero(t, resolver.calls)
}

func TestAuthorizeMapsResolverFailures(t *testing.T) {
	testCases := []struct {
		name       string
		err        error
		wantReason string
		wantStage  Stage
	}{
		{name: "user-not-found", err: documents.ErrUserNotFound, wantReason: ReasonUserNotFound, wantStage: StageCredentialChecked},
		{name: "store-unavailable", err: errors.New("connection refused"), wantReason: ReasonInternal, wantStage: StageCredentialChecked},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			authorizer := newTestAuthorizer(t, &resolverStub{err: testCase.err})
			_, err := authorizer.Authorize(context.Background(), AdmissionRequest{Token: signToken(t, testSigningSecret, 1), DocumentName: testDocumentName})
			var admissionErr *AdmissionError
			require.ErrorAs(t, err, &admissionErr)
			require.Equal(t, testCase.wantReason, admissionErr.Reason)
			require.Equal(t, testCase.wantStage, admissionErr.Stage)
		})
	}
}

func TestNewSessionAuthorizerRequiresDependencies(t *testing.T) {
	_, err := NewSessionAuthorizer(nil, &resolverStub{}, nil, nil)
	require.Error(t, err)
	verifier, err := auth.NewCredentialVerifier(auth.CredentialVerifierConfig{SigningSecret: []byte("s")})
	require.NoError(t, err)
	_, err = NewSessionAuthorizer(verifier, nil, nil, nil)
	require.Error(t, err)
}
