package tools

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"regexp"
	"strings"
	"time"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

const webRequestTimeout = 10 * time.Second

// WebSearchTool queries the DuckDuckGo HTML endpoint and extracts results
// with regexes. No API key needed.
type WebSearchTool struct {
	region     string
	maxResults int
	httpClient *http.Client
}

func NewWebSearchTool(region string, maxResults int) *WebSearchTool {
	if region == "" {
		region = "br-pt"
	}
	if maxResults <= 0 {
		maxResults = 5
	}
	return &WebSearchTool{
		region:     region,
		maxResults: maxResults,
		httpClient: &http.Client{Timeout: webRequestTimeout},
	}
}

type webSearchArgs struct {
	Busca string `json:"busca" jsonschema_description:"Termo ou frase a pesquisar na web (obrigatório)."`
	Modo  string `json:"modo,omitempty" jsonschema:"enum=texto,enum=noticias" jsonschema_description:"Categoria da pesquisa: 'texto' (padrão) ou 'noticias'."`
	Data  string `json:"data,omitempty" jsonschema:"enum=todos,enum=d,enum=s,enum=m,enum=a" jsonschema_description:"Período: 'todos' (padrão), 'd' (24h), 's' (semana), 'm' (mês), 'a' (ano)."`
}

func (t *WebSearchTool) Name() string { return "pesquisar_web" }

func (t *WebSearchTool) Description() string {
	return "Pesquisa na Internet e retorna títulos, links e trechos dos resultados. " +
		"Use modo 'noticias' para notícias recentes; o termo de busca deve ser claro e específico."
}

func (t *WebSearchTool) Parameters() map[string]any {
	return GenerateSchema[webSearchArgs]()
}

// timeWindows maps the user-facing period codes to the df parameter values
// the endpoint understands.
var timeWindows = map[string]string{
	"d": "d",
	"s": "w",
	"m": "m",
	"a": "y",
}

func (t *WebSearchTool) Execute(ctx context.Context, args map[string]any) *ToolResult {
	var parsed webSearchArgs
	if err := DecodeArgs(args, &parsed); err != nil {
		return ErrorResult(fmt.Sprintf("argumentos inválidos: %v", err))
	}
	if strings.TrimSpace(parsed.Busca) == "" {
		return ErrorResult("Especifique um termo de busca!")
	}

	query := parsed.Busca
	if parsed.Modo == "noticias" {
		// The HTML endpoint has no dedicated news vertical; bias the query.
		query = "notícias " + query
	}

	values := url.Values{}
	values.Set("q", query)
	values.Set("kl", t.region)
	if window, ok := timeWindows[parsed.Data]; ok {
		values.Set("df", window)
	}
	searchURL := "https://html.duckduckgo.com/html/?" + values.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return ErrorResult(fmt.Sprintf("Erro ao montar pesquisa: %v", err)).WithError(err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return ErrorResult(fmt.Sprintf("Erro ao acessar o mecanismo de busca: %v", err)).WithError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return ErrorResult(fmt.Sprintf("Erro ao ler resposta da busca: %v", err)).WithError(err)
	}

	return TextResult(t.extractResults(string(body), parsed.Busca))
}

var (
	reResultLink    = regexp.MustCompile(`<a[^>]*class="[^"]*result__a[^"]*"[^>]*href="([^"]+)"[^>]*>([\s\S]*?)</a>`)
	reResultSnippet = regexp.MustCompile(`<a class="result__snippet[^"]*".*?>([\s\S]*?)</a>`)
)

func (t *WebSearchTool) extractResults(html, query string) string {
	matches := reResultLink.FindAllStringSubmatch(html, t.maxResults+5)
	if len(matches) == 0 {
		return "Nenhum resultado encontrado, tente outra pesquisa!"
	}
	snippets := reResultSnippet.FindAllStringSubmatch(html, t.maxResults+5)

	var lines []string
	lines = append(lines, fmt.Sprintf("Resultados para: %s", query))

	total := min(len(matches), t.maxResults)
	for i := 0; i < total; i++ {
		link := decodeRedirect(matches[i][1])
		if len(link) > 120 {
			link = link[:120] + "[...]"
		}
		title := strings.TrimSpace(stripTags(matches[i][2]))
		lines = append(lines, fmt.Sprintf("%d. %s\n   %s", i+1, title, link))

		if i < len(snippets) {
			snippet := strings.TrimSpace(stripTags(snippets[i][1]))
			if len(snippet) > 700 {
				snippet = snippet[:700] + "[...]"
			}
			if snippet != "" {
				lines = append(lines, "   "+snippet)
			}
		}
	}
	return strings.Join(lines, "\n")
}

// decodeRedirect unwraps the uddg redirect links the endpoint returns.
func decodeRedirect(link string) string {
	if !strings.Contains(link, "uddg=") {
		return link
	}
	unescaped, err := url.QueryUnescape(link)
	if err != nil {
		return link
	}
	idx := strings.Index(unescaped, "uddg=")
	if idx == -1 {
		return link
	}
	target := unescaped[idx+5:]
	if amp := strings.Index(target, "&rut="); amp != -1 {
		target = target[:amp]
	}
	return target
}

// PageTool fetches a URL and returns its readable text. Private and local
// targets are refused so the model cannot probe the host's network.
type PageTool struct {
	maxChars          int
	httpClient        *http.Client
	resolver          *net.Resolver
	allowPrivateHosts bool
}

func NewPageTool(maxChars int) *PageTool {
	t := &PageTool{maxChars: maxChars, resolver: net.DefaultResolver}
	if t.maxChars <= 0 {
		t.maxChars = 8000
	}
	t.httpClient = &http.Client{
		Timeout: webRequestTimeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return fmt.Errorf("stopped after 5 redirects")
			}
			return t.validateTarget(req.Context(), req.URL)
		},
	}
	return t
}

type pageArgs struct {
	URL string `json:"url" jsonschema_description:"URL completa da página a abrir (obrigatório, http ou https)."`
}

func (t *PageTool) Name() string { return "abrir_pagina" }

func (t *PageTool) Description() string {
	return "Abre uma página web e retorna seu conteúdo em texto legível. " +
		"Use após pesquisar_web para ler o conteúdo completo de um resultado."
}

func (t *PageTool) Parameters() map[string]any {
	return GenerateSchema[pageArgs]()
}

func (t *PageTool) Execute(ctx context.Context, args map[string]any) *ToolResult {
	var parsed pageArgs
	if err := DecodeArgs(args, &parsed); err != nil {
		return ErrorResult(fmt.Sprintf("argumentos inválidos: %v", err))
	}
	if strings.TrimSpace(parsed.URL) == "" {
		return ErrorResult("Especifique a URL da página!")
	}

	target, err := url.Parse(parsed.URL)
	if err != nil {
		return ErrorResult(fmt.Sprintf("URL inválida: %v", err))
	}
	if target.Scheme != "http" && target.Scheme != "https" {
		return ErrorResult("Apenas URLs http/https são permitidas")
	}
	if err := t.validateTarget(ctx, target); err != nil {
		return ErrorResult(fmt.Sprintf("Destino bloqueado: %v", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.URL, nil)
	if err != nil {
		return ErrorResult(fmt.Sprintf("Erro ao montar requisição: %v", err)).WithError(err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return ErrorResult(fmt.Sprintf("Erro ao acessar página: %v", err)).WithError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return ErrorResult(fmt.Sprintf("Erro ao ler página: %v", err)).WithError(err)
	}

	text := cleanHTML(string(body))
	if text == "" {
		return ErrorResult("Não foi possível extrair texto da página.")
	}

	truncated := false
	if len(text) > t.maxChars {
		text = text[:t.maxChars]
		truncated = true
	}

	header := fmt.Sprintf("Página: %s (status %d)", parsed.URL, resp.StatusCode)
	if truncated {
		header += " [conteúdo truncado]"
	}
	return TextResult(header + "\n\n" + text)
}

var blockCandidates = []*regexp.Regexp{
	regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`),
	regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`),
	regexp.MustCompile(`(?is)<head[^>]*>.*?</head>`),
	regexp.MustCompile(`(?is)<svg[^>]*>.*?</svg>`),
	regexp.MustCompile(`(?is)<iframe[^>]*>.*?</iframe>`),
	regexp.MustCompile(`(?is)<nav[^>]*>.*?</nav>`),
	regexp.MustCompile(`(?is)<footer[^>]*>.*?</footer>`),
	regexp.MustCompile(`(?is)<header[^>]*>.*?</header>`),
	regexp.MustCompile(`(?is)<aside[^>]*>.*?</aside>`),
	regexp.MustCompile(`(?is)<noscript[^>]*>.*?</noscript>`),
	regexp.MustCompile(`(?s)<!--.*?-->`),
}

var (
	reAnyTag     = regexp.MustCompile(`<[^>]+>`)
	reEntity     = regexp.MustCompile(`&[a-zA-Z]+;`)
	reWhitespace = regexp.MustCompile(`\s+`)
)

func cleanHTML(html string) string {
	cleaned := html
	for _, re := range blockCandidates {
		cleaned = re.ReplaceAllString(cleaned, "")
	}
	cleaned = reAnyTag.ReplaceAllString(cleaned, "")
	cleaned = reEntity.ReplaceAllString(cleaned, " ")
	cleaned = reWhitespace.ReplaceAllString(cleaned, " ")
	return strings.TrimSpace(cleaned)
}

func stripTags(content string) string {
	return reAnyTag.ReplaceAllString(content, "")
}

func (t *PageTool) validateTarget(ctx context.Context, target *url.URL) error {
	if t.allowPrivateHosts {
		return nil
	}
	host := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(target.Hostname())), ".")
	if host == "" {
		return fmt.Errorf("host ausente")
	}
	if host == "localhost" ||
		strings.HasSuffix(host, ".localhost") ||
		strings.HasSuffix(host, ".local") ||
		strings.HasSuffix(host, ".internal") {
		return fmt.Errorf("host %q aponta para rede local", host)
	}

	if ip := net.ParseIP(host); ip != nil {
		if isBlockedIP(ip) {
			return fmt.Errorf("endereço %s não permitido", ip)
		}
		return nil
	}

	lookupCtx, cancel := ctx, func() {}
	if _, hasDeadline := lookupCtx.Deadline(); !hasDeadline {
		lookupCtx, cancel = context.WithTimeout(lookupCtx, 5*time.Second)
	}
	defer cancel()

	addrs, err := t.resolver.LookupIPAddr(lookupCtx, host)
	if err != nil {
		return fmt.Errorf("resolvendo host %q: %w", host, err)
	}
	for _, addr := range addrs {
		if isBlockedIP(addr.IP) {
			return fmt.Errorf("endereço resolvido %s não permitido", addr.IP)
		}
	}
	return nil
}

var blockedPrefixes = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("100.64.0.0/10"),
	netip.MustParsePrefix("127.0.0.0/8"),
	netip.MustParsePrefix("169.254.0.0/16"),
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
	netip.MustParsePrefix("198.18.0.0/15"),
	netip.MustParsePrefix("224.0.0.0/4"),
	netip.MustParsePrefix("240.0.0.0/4"),
	netip.MustParsePrefix("::/128"),
	netip.MustParsePrefix("::1/128"),
	netip.MustParsePrefix("fc00::/7"),
	netip.MustParsePrefix("fe80::/10"),
	netip.MustParsePrefix("ff00::/8"),
}

func isBlockedIP(ip net.IP) bool {
	if ip == nil {
		return true
	}
	if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() ||
		ip.IsMulticast() || ip.IsUnspecified() {
		return true
	}
	addr, ok := netip.AddrFromSlice(ip)
	if !ok {
		return true
	}
	for _, prefix := range blockedPrefixes {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}
