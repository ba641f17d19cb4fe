package studio

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"image-processor-go/internal/domain/vision"
	httptransport "image-processor-go/internal/transport/http"
	"image-processor-go/internal/platform/observability"
)

// handleHealth 服务健康检查
// @Summary Service health
// @Tags System
// @Produce json
// @Success 200 {object} httptransport.APIResponse
// @Router /health [get]
func (s *Service) handleHealth(c *gin.Context) {
	ctx := c.Request.Context()

	name, provider, _ := s.config.SelectedVLLLM()
	visionInfo := gin.H{
		"selected":    name,
		"type":        provider.Type,
		"model":       provider.ModelName,
		"credentials": provider.Type == "ollama" || provider.APIKey != "",
	}
	if d, ok := s.vision.(vision.Describer); ok {
		visionInfo["provider"] = d.Name()
		visionInfo["model"] = d.Model()
	}

	data := gin.H{
		"vision":  visionInfo,
		"metrics": observability.Snapshot(),
	}

	if s.store != nil {
		if stats, err := s.store.Stats(ctx); err != nil {
			s.logger.WarnTag("HTTP", "session store stats unavailable: %v", err)
			data["sessions"] = gin.H{"error": err.Error()}
		} else {
			data["sessions"] = stats
		}
	}
	if s.pipeline != nil {
		m := s.pipeline.Metrics()
		data["images"] = gin.H{
			"processed":          m.TotalProcessed,
			"uploads":            m.UploadAccepted,
			"captures":           m.CameraAccepted,
			"failed":             m.FailedValidations,
			"security_incidents": m.SecurityIncidents,
		}
	}

	host := gin.H{}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		host["memory_total"] = vm.Total
		host["memory_used"] = vm.Used
		host["memory_used_percent"] = vm.UsedPercent
	}
	if n, err := cpu.CountsWithContext(ctx, true); err == nil {
		host["cpus"] = n
	}
	data["host"] = host

	httptransport.RespondSuccess(c, http.StatusOK, data, "healthy")
}
