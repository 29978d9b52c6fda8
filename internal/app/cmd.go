package app

import "fmt"

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はAPIサーバーモードで起動することを示す。
	CommandServe Command = "serve"
	// CommandMigrate はデータベースマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

// usageText は未知のコマンドに対して返す使い方の説明。
const usageText = "usage: campusos [serve|migrate|healthcheck]"

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空の場合はCommandServeを返す。未知のコマンドはエラーを返す。
func ParseCommand(args []string) (Command, error) {
	if len(args) == 0 {
		return CommandServe, nil
	}

	switch args[0] {
	case "serve":
		return CommandServe, nil
	case "migrate":
		return CommandMigrate, nil
	case "healthcheck":
		return CommandHealthcheck, nil
	default:
		return "", fmt.Errorf("unknown command %q\n%s", args[0], usageText)
	}
}
