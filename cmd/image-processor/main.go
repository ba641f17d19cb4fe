// @title Image Processor API
// @version 1.0
// @description Upload or capture an image, add an optional prompt and get a vision model response.
// @host localhost:8080
// @BasePath /api
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"image-processor-go/internal/bootstrap"
)

func main() {
	fmt.Printf("[%s] [INFO] [Boot] starting image-processor...\n", time.Now().Format("2006-01-02 15:04:05.000"))
	if err := bootstrap.Run(context.Background()); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "image-processor failed: %v\n", err)
		os.Exit(1)
	}
}
