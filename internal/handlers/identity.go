package handlers

import (
	"strings"

	"github.com/awslabs/aws-lambda-go-api-proxy/core"
	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/go-storefront/internal/auth"
)

const (
	callerKey    = "storefront.caller"
	userIDHeader = "X-User-Id"
	claimsKey    = "claims"
	subjectClaim = "sub"
	principalKey = "principalId"
)

// Identity resolves the caller once per request. Requests without an identity
// continue as auth.Anonymous; operations that need one reject them.
func Identity(trustHeader bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller := auth.Anonymous
		if id := authorizerSubject(c); id != "" {
			caller = auth.Caller{ID: id}
		} else if trustHeader {
			caller = auth.Caller{ID: strings.TrimSpace(c.GetHeader(userIDHeader))}
		}
		c.Set(callerKey, caller)
		c.Next()
	}
}

// CallerFrom returns the caller resolved by Identity.
func CallerFrom(c *gin.Context) auth.Caller {
	if v, ok := c.Get(callerKey); ok {
		if caller, ok := v.(auth.Caller); ok {
			return caller
		}
	}
	return auth.Anonymous
}

// authorizerSubject reads a Cognito/JWT subject claim, falling back to the
// custom authorizer principal.
func authorizerSubject(c *gin.Context) string {
	rc, ok := core.GetAPIGatewayContextFromContext(c.Request.Context())
	if !ok || rc.Authorizer == nil {
		return ""
	}
	if claims, ok := rc.Authorizer[claimsKey].(map[string]interface{}); ok {
		if sub, ok := claims[subjectClaim].(string); ok && sub != "" {
			return sub
		}
	}
	if p, ok := rc.Authorizer[principalKey].(string); ok {
		return p
	}
	return ""
}
