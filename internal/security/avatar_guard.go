package security

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

// AvatarGuardService はユーザーが指定したアバターURLの検証機能のインターフェースを定義する。
// プロフィール更新時に使用される。
type AvatarGuardService interface {
	// ValidateAvatarURL はアバターURLの安全性を検証する。
	// http/httpsのURLまたはdata:image/のデータURIを許可し、
	// プライベートIP・ループバック・リンクローカルを指すURLを拒否する。
	ValidateAvatarURL(rawURL string) error

	// ProbeAvatarURL はアバターURLへHEADリクエストを送り、
	// 画像として到達可能かを確認する。応答が得られない場合は縮退として許可する。
	ProbeAvatarURL(ctx context.Context, rawURL string) error

	// NewSafeClient はSSRF防止機能付きのHTTPクライアントを生成する。
	// アバターURLの到達性確認などリモート取得を行う場合に使用する。
	// safeurlライブラリにより、プライベートIP、ループバック、リンクローカル、
	// メタデータIPへのリクエストが自動的にブロックされ、
	// DNS再バインディング攻撃への対策も有効化される。
	NewSafeClient(timeout time.Duration) *http.Client
}

// avatarProbeTimeout はアバターURL到達性確認のタイムアウト。
const avatarProbeTimeout = 5 * time.Second

// allowedSchemes はアバターURLで許可されるURLスキーム。
var allowedSchemes = []string{"http", "https"}

// blockedNetworks は検証でブロックされるネットワーク範囲。
// パッケージ初期化時に1回だけパースし、ValidateAvatarURLでの検証に使用する。
// safeurlはnet.DialerレベルでDNS解決後のIPアドレスも検証するため、
// DNS再バインディング攻撃にも対応している。
var blockedNetworks []net.IPNet

func init() {
	cidrs := []string{
		// プライベートIPアドレス (RFC 1918)
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		// ループバック (RFC 1122)
		"127.0.0.0/8",
		// リンクローカル (RFC 3927) - クラウドメタデータIP (169.254.169.254) を含む
		"169.254.0.0/16",
		// カレントネットワーク
		"0.0.0.0/8",
		// IPv6ループバック
		"::1/128",
		// IPv6リンクローカル
		"fe80::/10",
		// IPv6ユニークローカル
		"fc00::/7",
	}
	for _, cidr := range cidrs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(fmt.Sprintf("invalid CIDR in blockedNetworks: %s: %v", cidr, err))
		}
		blockedNetworks = append(blockedNetworks, *network)
	}
}

// blockedHostnames はブロック対象のホスト名。
var blockedHostnames = []string{
	"localhost",
	"metadata.google.internal",
}

// avatarGuard はAvatarGuardServiceの実装。
type avatarGuard struct {
	// httpClient はテストで差し替えるためのフック。nilの場合はNewSafeClientを使う。
	httpClient *http.Client
}

// NewAvatarGuard はAvatarGuardServiceの新しいインスタンスを生成する。
func NewAvatarGuard() *avatarGuard {
	return &avatarGuard{}
}

// ValidateAvatarURL はアバターURLの安全性を検証する。
// DNS解決を伴わない静的な検証を行う。
// 注意: DNS再バインディング攻撃はNewSafeClientが生成する
// HTTPクライアント側のDialer検証で防止される。
func (g *avatarGuard) ValidateAvatarURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("empty URL")
	}

	// インラインのデータURIは画像のみ許可
	if strings.HasPrefix(rawURL, "data:") {
		if strings.HasPrefix(rawURL, "data:image/") {
			return nil
		}
		return fmt.Errorf("disallowed data URI (only data:image/ is allowed)")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	// スキーム検証: http/httpsのみ許可
	scheme := strings.ToLower(parsed.Scheme)
	if !isAllowedScheme(scheme) {
		return fmt.Errorf("disallowed scheme: %s (allowed: %v)", scheme, allowedSchemes)
	}

	// ホスト検証: 空ホストを拒否
	host := parsed.Hostname()
	if host == "" {
		return fmt.Errorf("empty host in URL: %s", rawURL)
	}

	// IPアドレスの場合: ブロック対象CIDRとの照合
	ip := net.ParseIP(host)
	if ip != nil {
		if isBlockedIP(ip) {
			return fmt.Errorf("blocked IP address: %s", ip.String())
		}
		return nil
	}

	// ホスト名の場合: localhost等の危険なホスト名を拒否
	if isBlockedHostname(host) {
		return fmt.Errorf("blocked host: %s", host)
	}

	return nil
}

// ProbeAvatarURL はアバターURLへHEADリクエストを送り、画像として到達可能かを確認する。
// リクエスト自体が失敗した場合（DNS障害・タイムアウト等）は縮退としてnilを返し、
// 応答が得られた場合のみ判定する: 2xx以外のステータス、および
// 画像以外のContent-Typeをエラーとする。データURIは検証済みとしてスキップする。
func (g *avatarGuard) ProbeAvatarURL(ctx context.Context, rawURL string) error {
	if strings.HasPrefix(rawURL, "data:") {
		return nil
	}

	client := g.httpClient
	if client == nil {
		client = g.NewSafeClient(avatarProbeTimeout)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return fmt.Errorf("invalid avatar URL: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		slog.Warn("アバターURLの到達性確認に失敗しました", "url", rawURL, "error", err)
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("avatar URL returned status %d", resp.StatusCode)
	}

	mime := resp.Header.Get("Content-Type")
	if i := strings.Index(mime, ";"); i >= 0 {
		mime = mime[:i]
	}
	mime = strings.TrimSpace(strings.ToLower(mime))
	// HEAD応答でContent-Typeを省略するサーバーは許容する
	if mime != "" && !strings.HasPrefix(mime, "image/") {
		return fmt.Errorf("avatar URL is not an image (content-type: %s)", mime)
	}
	return nil
}

// NewSafeClient はSSRF防止機能付きのHTTPクライアントを生成する。
// safeurlのデフォルト設定により以下がブロックされる:
//   - プライベートIPアドレス (10.0.0.0/8, 172.16.0.0/12, 192.168.0.0/16)
//   - ループバックアドレス (127.0.0.0/8, ::1)
//   - リンクローカルアドレス (169.254.0.0/16, fe80::/10)
//   - メタデータIPアドレス (169.254.169.254)
func (g *avatarGuard) NewSafeClient(timeout time.Duration) *http.Client {
	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes(allowedSchemes...).
		SetAllowedPorts(80, 443).
		Build()

	wrappedClient := safeurl.Client(config)
	return wrappedClient.Client
}

// isAllowedScheme はURLスキームが許可リストに含まれるかを検証する。
func isAllowedScheme(scheme string) bool {
	for _, allowed := range allowedSchemes {
		if strings.EqualFold(scheme, allowed) {
			return true
		}
	}
	return false
}

// isBlockedIP はIPアドレスがブロック対象のネットワーク範囲に含まれるかを検証する。
func isBlockedIP(ip net.IP) bool {
	for _, network := range blockedNetworks {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// isBlockedHostname はホスト名がブロック対象かを検証する。
func isBlockedHostname(host string) bool {
	lower := strings.ToLower(host)
	for _, blocked := range blockedHostnames {
		if lower == blocked {
			return true
		}
	}
	return false
}
