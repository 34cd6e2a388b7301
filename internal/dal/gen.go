package dal

import (
	"gorm.io/gen"
	"gorm.io/gorm"
)

// GenExecute 生成 gorm-gen 查询代码
// 命令使用: go run cmd/gen/main.go
func GenExecute(outPath string, conn *gorm.DB) {
	g := gen.NewGenerator(gen.Config{
		OutPath: outPath,
		Mode:    gen.WithoutContext | gen.WithDefaultQuery | gen.WithQueryInterface,
	})

	g.UseDB(conn)
	g.ApplyBasic(Models()...)

	g.Execute()
}
