package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"

	"z-script-ai-api/internal/config"
	"z-script-ai-api/internal/domain/entity"
	"z-script-ai-api/internal/wire"
)

const defaultDemoConfigID = "00000000-0000-0000-0000-000000000001"

func main() {
	_ = godotenv.Load()

	fmt.Println("Starting system bootstrap...")

	// 1. 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx := context.Background()

	// 2. 初始化数据层（仅 PostgreSQL）
	dataLayer, cleanup, err := wire.InitializePostgresOnly(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to initialize data layer: %v", err)
	}
	defer cleanup()

	// 3. 建表
	if err := dataLayer.PgClient.AutoMigrate(ctx); err != nil {
		log.Fatalf("failed to migrate schema: %v", err)
	}
	fmt.Println("Schema migrated.")

	// 4. 示例剧本配置
	demoID := os.Getenv("BOOTSTRAP_DEMO_CONFIG_ID")
	if demoID == "" {
		demoID = defaultDemoConfigID
	}
	err = dataLayer.TxManager.WithTransaction(ctx, func(txCtx context.Context) error {
		existing, err := dataLayer.ScriptConfigRepo.GetByID(txCtx, demoID)
		if err != nil {
			return err
		}
		if existing != nil {
			fmt.Printf("Demo script config %s already exists.\n", demoID)
			return nil
		}
		demo := entity.NewScriptConfig("雾港疑案", 4, "悬疑推理", "民国", "hardcore")
		demo.ID = demoID
		demo.Tone = "压抑"
		if err := dataLayer.ScriptConfigRepo.Create(txCtx, demo); err != nil {
			return err
		}
		fmt.Printf("Demo script config created with ID: %s\n", demoID)
		return nil
	})
	if err != nil {
		log.Fatalf("failed to seed demo script config: %v", err)
	}

	fmt.Println("Bootstrap completed successfully.")
}
