package signal

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Lexicon 汇总代码提取与情绪打分所需的词表。
type Lexicon struct {
	blacklist  map[string]struct{}
	bullish    map[string]struct{}
	bearish    map[string]struct{}
	tradeWords map[string]struct{}
}

var defaultBlacklist = []string{
	// 金融/交易术语
	"CEO", "CFO", "COO", "CTO", "IPO", "EPS", "GDP", "SEC", "FDA", "USA", "USD", "ETF", "NYSE", "API",
	"ATH", "ATL", "IMO", "FOMO", "YOLO", "DD", "TA", "FA", "ROI", "PE", "PB", "PS", "EV", "DCF",
	"WSB", "RIP", "LOL", "OMG", "WTF", "FUD", "HODL", "APE", "MOASS", "DRS", "NFT", "DAO",
	// 常见英文单词
	"THE", "AND", "FOR", "ARE", "BUT", "NOT", "YOU", "ALL", "CAN", "HER", "WAS", "ONE", "OUR",
	"OUT", "WHO", "GET", "HAS", "HIM", "HIS", "HOW", "ITS", "MAY", "NEW", "NOW", "OLD", "SEE",
	"TWO", "WAY", "BOY", "DID", "LET", "PUT", "SAY", "SHE", "TOO", "USE", "DAY",
	"EVEN", "FIND", "GIVE", "GOOD", "HAND", "HIGH", "KEEP", "LAST", "LEFT", "LIFE", "LONG", "MADE",
	"MAKE", "MANY", "MOST", "MOVE", "MUCH", "MUST", "NAME", "NEED", "NEXT", "ONLY", "OPEN", "OVER",
	"PART", "PLAY", "SAID", "SAME", "SEEM", "SHOW", "SIDE", "SOME", "SUCH", "TAKE", "TELL", "THAN",
	"THAT", "THEM", "THEN", "THEY", "THIS", "TIME", "VERY", "WANT", "WELL", "WENT", "WERE", "WHAT",
	"WHEN", "WILL", "WITH", "WORD", "WORK", "YEAR", "YOUR", "BACK", "CAME", "COME", "EACH", "FROM",
	"HAVE", "HERE", "INTO", "JUST", "LIKE", "LOOK", "MORE", "OTHER", "THEIR", "THERE",
	"THESE", "THING", "THINK", "THOSE", "UNDER", "WOULD", "ABOUT", "AFTER", "AGAIN", "BELOW", "COULD",
	"EVERY", "FIRST", "FOUND", "GREAT", "HOUSE", "LARGE", "LEARN", "NEVER", "PLACE", "POINT", "RIGHT",
	"SMALL", "SOUND", "STILL", "STUDY", "THREE", "WHERE", "WHICH", "WHILE", "WORLD", "WRITE", "YEARS",
	"BEING", "DOING", "GOING", "USING",
	// 介词/连词
	"AS", "AT", "BE", "BY", "DO", "GO", "IF", "IN", "IS", "IT", "ME", "MY", "NO", "OF", "ON", "OR",
	"SO", "TO", "UP", "US", "WE", "AN", "AM", "HE",
	// 交易俚语
	"BULL", "BEAR", "CALL", "PUTS", "HOLD", "SELL", "MOON", "PUMP", "DUMP", "BAGS", "TEND",
	"GAIN", "LOSS", "WINS", "FAIL", "TECH", "MEME", "STOCK", "TRADE", "SHORT", "PENNY",
}

var (
	defaultBullish = []string{"moon", "rocket", "buy", "calls", "long", "bullish", "yolo", "tendies",
		"gains", "diamond", "squeeze", "pump", "green", "up", "breakout"}
	defaultBearish = []string{"puts", "short", "sell", "bearish", "crash", "dump", "drill", "tank",
		"rip", "red", "down", "bag", "overvalued", "bubble"}
	defaultTradeWords = []string{"call", "calls", "put", "puts", "stock", "share", "shares", "moon",
		"rocket", "yolo", "buy", "sell", "long", "short"}
)

// DefaultLexicon 返回内置词表。
func DefaultLexicon() *Lexicon {
	return &Lexicon{
		blacklist:  toSet(defaultBlacklist, strings.ToUpper),
		bullish:    toSet(defaultBullish, strings.ToLower),
		bearish:    toSet(defaultBearish, strings.ToLower),
		tradeWords: toSet(defaultTradeWords, strings.ToLower),
	}
}

// lexiconFile 为 YAML 覆盖文件格式。
type lexiconFile struct {
	BlacklistAdd    []string `yaml:"blacklist_add"`
	BlacklistRemove []string `yaml:"blacklist_remove"`
	Bullish         []string `yaml:"bullish"`
	Bearish         []string `yaml:"bearish"`
}

// LoadLexicon 在内置词表上应用 YAML 覆盖；path 为空或文件不存在时返回内置词表。
func LoadLexicon(path string) (*Lexicon, error) {
	lex := DefaultLexicon()
	path = strings.TrimSpace(path)
	if path == "" {
		return lex, nil
	}
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return lex, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read lexicon %s: %w", path, err)
	}
	var f lexiconFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse lexicon %s: %w", path, err)
	}
	for _, w := range f.BlacklistAdd {
		lex.blacklist[strings.ToUpper(strings.TrimSpace(w))] = struct{}{}
	}
	for _, w := range f.BlacklistRemove {
		delete(lex.blacklist, strings.ToUpper(strings.TrimSpace(w)))
	}
	if len(f.Bullish) > 0 {
		lex.bullish = toSet(f.Bullish, strings.ToLower)
	}
	if len(f.Bearish) > 0 {
		lex.bearish = toSet(f.Bearish, strings.ToLower)
	}
	return lex, nil
}

// Blacklisted 判断候选代码是否在黑名单中。
func (l *Lexicon) Blacklisted(symbol string) bool {
	_, ok := l.blacklist[strings.ToUpper(symbol)]
	return ok
}

func toSet(words []string, norm func(string) string) map[string]struct{} {
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		w = norm(strings.TrimSpace(w))
		if w != "" {
			out[w] = struct{}{}
		}
	}
	return out
}
