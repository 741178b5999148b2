package token

// 這個變數會在測試時被覆蓋
var (
	GenerateJWTFunc = GenerateJWT
	ParseJWTFunc    = ParseJWT
)

// ParseJWTWrapper middleware 使用這個包裝函數, test 可替換
func ParseJWTWrapper(t string) (*Claims, error) {
	return ParseJWTFunc(t)
}

// GenerateJWTWrapper test helper 產生 token
func GenerateJWTWrapper(userID int64, role string) (string, error) {
	return GenerateJWTFunc(userID, role, "chat_service")
}
