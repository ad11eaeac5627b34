package handler

import "github.com/gin-gonic/gin"

// Response wraps every successful payload. Failures are rendered by the
// error middleware from the errors handlers attach with c.Error.
type Response struct {
	Status string      `json:"status"`
	Data   interface{} `json:"data,omitempty"`
}

// JSON writes data inside the success envelope.
func JSON(c *gin.Context, status int, data interface{}) {
	c.JSON(status, Response{Status: "success", Data: data})
}
