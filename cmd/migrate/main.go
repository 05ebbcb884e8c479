package main

import (
	"fmt"
	"log"
	"os"

	"autoflow/internal/config"
	"autoflow/internal/models"

	"github.com/spf13/viper"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func main() {
	// 加载配置
	viper.AddConfigPath(".")
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()
	_ = viper.ReadInConfig()
	cfg := config.Load()

	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		dsn = fmt.Sprintf(
			"host=%s user=%s password=%s dbname=%s port=%d sslmode=disable TimeZone=UTC",
			cfg.Database.Host, cfg.Database.User, cfg.Database.Password, cfg.Database.Name, cfg.Database.Port,
		)
	}

	// 连接数据库
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Info),
	})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	log.Println("Starting database migration...")

	// 自动迁移所有模型
	err = db.AutoMigrate(
		&models.AutomationRule{},
		&models.AutomationExecution{},
		&models.DomainEvent{},
	)
	if err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	log.Println("Database migration completed successfully!")

	// 创建索引
	log.Println("Creating additional indexes...")

	// 执行记录按规则和时间查询
	db.Exec("CREATE INDEX IF NOT EXISTS idx_executions_rule_triggered ON automation_executions(rule_id, triggered_at)")
	db.Exec("CREATE INDEX IF NOT EXISTS idx_executions_status ON automation_executions(status)")

	// 规则按启用状态过滤
	db.Exec("CREATE INDEX IF NOT EXISTS idx_rules_enabled ON automation_rules(enabled)")

	// 事件审计按类型与时间查询
	db.Exec("CREATE INDEX IF NOT EXISTS idx_domain_events_type_created ON domain_events(event_type, created_at)")

	log.Println("Additional indexes created successfully!")

	// 插入默认数据
	if len(os.Args) > 1 && os.Args[1] == "--seed" {
		log.Println("Seeding default data...")
		seedDefaultData(db)
		log.Println("Default data seeded successfully!")
	}

	log.Println("Migration process completed!")
}

func seedDefaultData(db *gorm.DB) {
	// 示例规则：工单进入 Blocked 状态时通知并加评论
	var existing models.AutomationRule
	if err := db.Where("name = ?", "notify-on-blocked").First(&existing).Error; err != nil {
		rule := models.AutomationRule{
			ID:          "seed-notify-on-blocked",
			Name:        "notify-on-blocked",
			Description: "Comment and notify when an issue transitions to Blocked",
			ProjectKeys: []string{"DEMO"},
			Enabled:     false,
			CreatedBy:   "admin@example.com",
			Triggers: []models.Trigger{
				{
					Kind:      models.TriggerDomainEvent,
					EventType: "issue_transitioned",
					Filter:    &models.EventFilter{ToStatus: []string{"Blocked"}},
				},
			},
			Actions: []models.Action{
				{Type: "add_comment", Order: 1, Params: map[string]interface{}{"body": "This issue is blocked. A reviewer has been notified."}},
				{Type: "notify", Order: 2, Params: map[string]interface{}{"message": "issue blocked"}},
			},
		}
		db.Create(&rule)
		log.Println("Created sample automation rule")
	}

	// 示例规则：每个工作日早上触发的计划规则
	var daily models.AutomationRule
	if err := db.Where("name = ?", "weekday-digest").First(&daily).Error; err != nil {
		rule := models.AutomationRule{
			ID:          "seed-weekday-digest",
			Name:        "weekday-digest",
			Description: "Post a digest webhook every weekday morning",
			ProjectKeys: []string{"DEMO"},
			Enabled:     false,
			CreatedBy:   "admin@example.com",
			Triggers: []models.Trigger{
				{Kind: models.TriggerScheduled, CronExpression: "0 9 * * 1-5", Timezone: "UTC"},
			},
			Actions: []models.Action{
				{Type: "webhook", Order: 1, Params: map[string]interface{}{"url": "http://localhost:9000/hooks/digest"}},
			},
		}
		db.Create(&rule)
		log.Println("Created sample scheduled rule")
	}
}
