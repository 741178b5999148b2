package testtool

import (
	"net/http"
	_ "net/http/pprof" // 匯入後會自動註冊 pprof endpoint

	"group_chat_service/pkg/config"
	"group_chat_service/pkg/logger"

	"go.uber.org/zap"
)

// StartPprof 非 production 環境時啟動 pprof 監控伺服器
func StartPprof(addr string) bool {
	if config.IsProduction() || addr == "" {
		logger.Log.Info("pprof is disabled")
		return false
	}

	go func() {
		logger.Log.Info("Starting pprof server", zap.String("addr", addr))
		if err := http.ListenAndServe(addr, nil); err != nil {
			logger.Log.Errorf("pprof server failed:", err)
		}
	}()
	return true
}

// 確認 pprof 是否啟動
// curl http://localhost:6060/debug/pprof/
// go tool pprof http://localhost:6060/debug/pprof/heap
