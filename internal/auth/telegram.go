package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"
	"time"
)

// telegramAuthMaxAge はauth_dateの許容経過時間（秒）。
const telegramAuthMaxAge = 86400

// VerifyTelegramHash はTelegramログインウィジェットのデータ署名を検証する。
// fieldsはhashを除く受信フィールドの集合。検証手順はTelegramの仕様に従う:
// キーをソートしてkey=valueを改行で連結したチェック文字列に対し、
// SHA256(ボットトークン)を鍵としたHMAC-SHA256がhashと一致すること。
// auth_dateが24時間より古いデータは拒否する。
func VerifyTelegramHash(botToken string, fields map[string]string, hash string, now time.Time) bool {
	if botToken == "" || hash == "" {
		return false
	}

	authDate, err := strconv.ParseInt(fields["auth_date"], 10, 64)
	if err != nil {
		return false
	}
	if now.Unix()-authDate > telegramAuthMaxAge {
		return false
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+fields[k])
	}
	checkString := strings.Join(pairs, "\n")

	secret := sha256.Sum256([]byte(botToken))
	mac := hmac.New(sha256.New, secret[:])
	mac.Write([]byte(checkString))
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(hash))
}

// TelegramFields はJSONとして受信したウィジェットデータを検証用の文字列マップへ変換する。
// hashキーは除外される。数値はJSONの表記そのままの形式に揃える。
func TelegramFields(data map[string]any) map[string]string {
	fields := make(map[string]string, len(data))
	for k, v := range data {
		if k == "hash" {
			continue
		}
		switch value := v.(type) {
		case string:
			fields[k] = value
		case float64:
			fields[k] = strconv.FormatFloat(value, 'f', -1, 64)
		case bool:
			fields[k] = strconv.FormatBool(value)
		case nil:
			// nullのフィールドはチェック文字列に含めない
		default:
			fields[k] = ""
		}
	}
	return fields
}
