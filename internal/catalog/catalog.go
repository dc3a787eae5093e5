package catalog

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hitoshi/cometab/internal/experiment"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Stat はヒーローセクションに並べる数値と見出しの組。
type Stat struct {
	Number string `yaml:"number"`
	Label  string `yaml:"label"`
}

// Theme はバリアントごとの配色トークン。
type Theme struct {
	Primary       string `yaml:"primary"`
	Accent        string `yaml:"accent"`
	Gradient      string `yaml:"gradient"`
	CardBg        string `yaml:"card_bg"`
	TextPrimary   string `yaml:"text_primary"`
	TextSecondary string `yaml:"text_secondary"`
	HeroGradient  string `yaml:"hero_gradient"`
}

// VariantConfig は1つのバケットに対応する表示設定。全フィールド必須。
type VariantConfig struct {
	Title               string   `yaml:"title"`
	TitleHighlight      string   `yaml:"title_highlight"`
	Subtitle            string   `yaml:"subtitle"`
	CTAText             string   `yaml:"cta_text"`
	CTASecondary        string   `yaml:"cta_secondary"`
	CTAColor            string   `yaml:"cta_color"`
	Features            []string `yaml:"features"`
	FeatureDescriptions []string `yaml:"feature_descriptions"`
	Highlight           string   `yaml:"highlight"`
	Stats               []Stat   `yaml:"stats"`
	Theme               Theme    `yaml:"theme"`
}

// Feature は機能名と説明をテンプレートで扱いやすい形にまとめたもの。
type Feature struct {
	Name        string
	Description string
}

// FeatureList は機能名と説明を対にして返す。
func (v VariantConfig) FeatureList() []Feature {
	out := make([]Feature, 0, len(v.Features))
	for i, name := range v.Features {
		f := Feature{Name: name}
		if i < len(v.FeatureDescriptions) {
			f.Description = v.FeatureDescriptions[i]
		}
		out = append(out, f)
	}
	return out
}

type document struct {
	Variants map[string]VariantConfig `yaml:"variants"`
}

// Catalog はバケット名から表示設定を引く読み取り専用のテーブル。
type Catalog struct {
	variants map[experiment.Bucket]VariantConfig
}

// Default は埋め込みのカタログを読み込む。
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// Load はpathのYAMLファイルからカタログを読み込む。pathが空なら埋め込みのカタログを使う。
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}
	return Parse(data)
}

// Parse はYAMLをデコードして検証済みのカタログを返す。
// 未知のフィールドや未知のバケット名はエラーになる。
func Parse(data []byte) (*Catalog, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var doc document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode catalog: %w", err)
	}

	c := &Catalog{variants: make(map[experiment.Bucket]VariantConfig, len(doc.Variants))}
	for name, cfg := range doc.Variants {
		b, ok := experiment.ParseBucket(name)
		if !ok {
			return nil, fmt.Errorf("unknown bucket in catalog: %q", name)
		}
		c.variants[b] = cfg
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Get はbucketの表示設定を返す。
func (c *Catalog) Get(b experiment.Bucket) (VariantConfig, bool) {
	cfg, ok := c.variants[b]
	return cfg, ok
}

// Validate は全バケットの設定が揃っていること、各フィールドが空でないこと、
// controlとvariantがタイトル・CTA文言・テーマのいずれかで異なることを検証する。
func (c *Catalog) Validate() error {
	var errs []error
	for _, b := range experiment.Buckets() {
		cfg, ok := c.variants[b]
		if !ok {
			errs = append(errs, fmt.Errorf("bucket %q: missing", b))
			continue
		}
		for _, field := range cfg.emptyFields() {
			errs = append(errs, fmt.Errorf("bucket %q: %s is empty", b, field))
		}
		if len(cfg.Features) != len(cfg.FeatureDescriptions) {
			errs = append(errs, fmt.Errorf("bucket %q: %d features but %d descriptions",
				b, len(cfg.Features), len(cfg.FeatureDescriptions)))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid catalog: %w", errors.Join(errs...))
	}

	control := c.variants[experiment.BucketControl]
	variant := c.variants[experiment.BucketVariant]
	if control.Title == variant.Title && control.CTAText == variant.CTAText && control.Theme == variant.Theme {
		return errors.New("invalid catalog: control and variant must differ in title, cta_text or theme")
	}
	return nil
}

func (v VariantConfig) emptyFields() []string {
	var out []string
	check := func(name, value string) {
		if strings.TrimSpace(value) == "" {
			out = append(out, name)
		}
	}

	check("title", v.Title)
	check("title_highlight", v.TitleHighlight)
	check("subtitle", v.Subtitle)
	check("cta_text", v.CTAText)
	check("cta_secondary", v.CTASecondary)
	check("cta_color", v.CTAColor)
	check("highlight", v.Highlight)
	check("theme.primary", v.Theme.Primary)
	check("theme.accent", v.Theme.Accent)
	check("theme.gradient", v.Theme.Gradient)
	check("theme.card_bg", v.Theme.CardBg)
	check("theme.text_primary", v.Theme.TextPrimary)
	check("theme.text_secondary", v.Theme.TextSecondary)
	check("theme.hero_gradient", v.Theme.HeroGradient)

	if len(v.Features) == 0 {
		out = append(out, "features")
	}
	for i, f := range v.Features {
		check(fmt.Sprintf("features[%d]", i), f)
	}
	if len(v.FeatureDescriptions) == 0 {
		out = append(out, "feature_descriptions")
	}
	for i, d := range v.FeatureDescriptions {
		check(fmt.Sprintf("feature_descriptions[%d]", i), d)
	}
	if len(v.Stats) == 0 {
		out = append(out, "stats")
	}
	for i, s := range v.Stats {
		check(fmt.Sprintf("stats[%d].number", i), s.Number)
		check(fmt.Sprintf("stats[%d].label", i), s.Label)
	}
	return out
}
