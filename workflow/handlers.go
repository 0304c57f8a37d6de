package workflow

import (
	"errors"
	"net/http"
	"os"
	"strconv"
	"time"

	"bitbucket.org/mohealth/registry_backend/config"
	"bitbucket.org/mohealth/registry_backend/models"
	"bitbucket.org/mohealth/registry_backend/utils"
	"github.com/gin-gonic/gin"
)

// statusForProvisionError maps the workflow error taxonomy to an HTTP
// status for the API surface.
func statusForProvisionError(err error) int {
	var validationErr *ValidationError
	var duplicateErr *DuplicateError
	var locationErr *LocationNotFoundError
	var configErr *ConfigurationError
	var upstreamErr *UpstreamRejectedError
	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest
	case errors.As(err, &duplicateErr):
		return http.StatusConflict
	case errors.As(err, &locationErr):
		return http.StatusNotFound
	case errors.As(err, &configErr):
		return http.StatusInternalServerError
	case errors.As(err, &upstreamErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// ProvisionHandler creates one account through the full saga and returns
// the generated credentials exactly once.
func ProvisionHandler(p *Provisioner) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ProvisionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		result, err := p.Provision(c.Request.Context(), req)
		if err != nil {
			c.JSON(statusForProvisionError(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, result)
	}
}

// EnqueueRecoveryHandler queues an account for the next recovery drain.
func EnqueueRecoveryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var account models.RecoveryAccount
		if err := c.ShouldBindJSON(&account); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if account.NIN == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "nin is required"})
			return
		}
		account.ID = 0
		account.Status = models.RecoveryStatusPending
		account.ErrorLog = ""
		account.ProcessedAt = nil
		if err := models.CreateRecoveryAccount(c.Request.Context(), &account); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"id": account.ID, "status": account.Status})
	}
}

// ListMembersHandler pages through the local member mirror.
func ListMembersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
		pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "50"))
		members, err := models.GetTeamMembers(c.Request.Context(), page, pageSize)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"items": members, "page": page})
	}
}

// LoginHandler exchanges provisioned credentials for a session token. The
// token is a JWT also registered in redis so SessionMiddleware accepts it.
func LoginHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var creds struct {
			Username string `json:"username" binding:"required"`
			Password string `json:"password" binding:"required"`
		}
		if err := c.ShouldBindJSON(&creds); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		member, err := models.GetTeamMemberByUsername(c.Request.Context(), creds.Username)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if member == nil || member.PasswordHash == "" ||
			utils.ComparePassword(member.PasswordHash, creds.Password) != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}

		token, err := utils.JwtGenerate(member.ID, member.Role)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		lifespan, err := strconv.Atoi(os.Getenv("TOKEN_HOUR_LIFESPAN"))
		if err != nil {
			lifespan = 24
		}
		if err := config.SetRedisValue("Token:"+token, member.Username, time.Duration(lifespan)*time.Hour); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{"token": token, "identifier": member.Identifier})
	}
}

// RecoveryRunHandler drains the pending queue and returns the settled
// report. The drain is synchronous; callers poll the queue for per-row
// detail afterwards.
func RecoveryRunHandler(r *Recoverer) gin.HandlerFunc {
	return func(c *gin.Context) {
		report, err := r.Run(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, report)
	}
}
