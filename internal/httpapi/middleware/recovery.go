package middleware

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/circuitsapp/circuits-backend/internal/common"
)

func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("panic recovered: %v path=%s", r, c.Request.URL.Path)
				common.Fail(c, http.StatusInternalServerError, 50000, "internal error")
				c.Abort()
			}
		}()
		c.Next()
	}
}
