// utils/respond.go
package utils

import (
	"github.com/gin-gonic/gin"
)

// RespondWithError writes the standard error envelope.
func RespondWithError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": message})
}
