package app

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はAPIサーバーモードで起動することを示す。
	CommandServe Command = "serve"
	// CommandWeb は認証ガード付きのwebゲートウェイとして起動することを示す。
	// DBには接続せず、API_URLのセッション検証エンドポイントのみに依存する。
	CommandWeb Command = "web"
	// CommandWorker は期限切れデータのクリーンアップワーカーとして起動することを示す。
	CommandWorker Command = "worker"
	// CommandAll はserve・web・workerを同一プロセスで起動することを示す。
	// ローカル開発用。
	CommandAll Command = "all"
	// CommandMigrate はデータベースマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandServeを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}

	switch Command(args[0]) {
	case CommandServe, CommandWeb, CommandWorker, CommandAll, CommandMigrate, CommandHealthcheck:
		return Command(args[0])
	default:
		return CommandServe
	}
}

// needsDatabase はコマンドがDATABASE_URLを必要とするかを返す。
func (c Command) needsDatabase() bool {
	return c != CommandWeb && c != CommandHealthcheck
}
