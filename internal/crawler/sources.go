package crawler

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Source describes one tracked publisher: RSS feeds to try first and listing
// pages to scrape when feeds are missing or thin.
type Source struct {
	Domain       string   `yaml:"domain"`
	Name         string   `yaml:"name"`
	RSSURLs      []string `yaml:"rss_urls"`
	FallbackURLs []string `yaml:"fallback_urls"`
}

type sourcesFile struct {
	Sources []Source `yaml:"sources"`
}

// Registry holds the known sources keyed by domain.
type Registry struct {
	byDomain map[string]Source
}

// DefaultSources is the built-in publisher list. A sources file can extend or
// override it.
func DefaultSources() []Source {
	return []Source{
		{Domain: "openai.com", Name: "OpenAI", RSSURLs: []string{"https://openai.com/news/rss.xml"}, FallbackURLs: []string{"https://openai.com/news"}},
		{Domain: "anthropic.com", Name: "Anthropic", FallbackURLs: []string{"https://www.anthropic.com/news"}},
		{Domain: "microsoft.com", Name: "Microsoft AI", RSSURLs: []string{"https://blogs.microsoft.com/ai/feed/"}, FallbackURLs: []string{"https://blogs.microsoft.com/ai/"}},
		{Domain: "google.com", Name: "Google AI", RSSURLs: []string{"https://blog.google/technology/ai/rss/"}, FallbackURLs: []string{"https://blog.google/technology/ai/"}},
		{Domain: "meta.com", Name: "Meta AI", RSSURLs: []string{"https://ai.meta.com/blog/rss/"}, FallbackURLs: []string{"https://ai.meta.com/blog/"}},
		{Domain: "perplexity.ai", Name: "Perplexity", FallbackURLs: []string{"https://blog.perplexity.ai/"}},
		{Domain: "oneusefulthing.org", Name: "One Useful Thing", RSSURLs: []string{"https://www.oneusefulthing.org/feed"}, FallbackURLs: []string{"https://www.oneusefulthing.org/"}},
		{Domain: "marketingaiinstitute.com", Name: "Marketing AI Institute", RSSURLs: []string{"https://www.marketingaiinstitute.com/feed"}, FallbackURLs: []string{"https://www.marketingaiinstitute.com/blog"}},
		{Domain: "economist.com", Name: "The Economist", RSSURLs: []string{"https://www.economist.com/technology/rss.xml"}, FallbackURLs: []string{"https://www.economist.com/technology"}},
		{Domain: "forbes.com", Name: "Forbes", RSSURLs: []string{"https://www.forbes.com/ai-big-data/feed/"}, FallbackURLs: []string{"https://www.forbes.com/ai-big-data/"}},
		{Domain: "fortune.com", Name: "Fortune", RSSURLs: []string{"https://fortune.com/section/artificial-intelligence/feed/"}, FallbackURLs: []string{"https://fortune.com/section/artificial-intelligence/"}},
		{Domain: "technologyreview.com", Name: "MIT Technology Review", RSSURLs: []string{"https://www.technologyreview.com/topicai/feed/"}, FallbackURLs: []string{"https://www.technologyreview.com/topic/artificial-intelligence/"}},
		{Domain: "techcrunch.com", Name: "TechCrunch AI", RSSURLs: []string{"https://techcrunch.com/category/artificial-intelligence/feed/"}, FallbackURLs: []string{"https://techcrunch.com/category/artificial-intelligence/"}},
		{Domain: "venturebeat.com", Name: "VentureBeat AI", RSSURLs: []string{"https://venturebeat.com/ai/feed/"}, FallbackURLs: []string{"https://venturebeat.com/ai/"}},
		{Domain: "theverge.com", Name: "The Verge AI", RSSURLs: []string{"https://www.theverge.com/ai-artificial-intelligence/rss/index.xml"}, FallbackURLs: []string{"https://www.theverge.com/ai-artificial-intelligence"}},
		{Domain: "wired.com", Name: "Wired AI", RSSURLs: []string{"https://www.wired.com/feed/tag/ai/latest/rss"}, FallbackURLs: []string{"https://www.wired.com/tag/artificial-intelligence/"}},
		{Domain: "hubspot.com", Name: "HubSpot AI", RSSURLs: []string{"https://blog.hubspot.com/marketing/topic/artificial-intelligence/rss.xml"}, FallbackURLs: []string{"https://blog.hubspot.com/marketing/topic/artificial-intelligence"}},
		{Domain: "salesforce.com", Name: "Salesforce AI", RSSURLs: []string{"https://www.salesforce.com/news/rss/"}, FallbackURLs: []string{"https://www.salesforce.com/news/", "https://www.salesforce.com/products/einstein/"}},
		{Domain: "adobe.com", Name: "Adobe AI", FallbackURLs: []string{"https://blog.adobe.com/en/topics/artificial-intelligence"}},
		{Domain: "nvidia.com", Name: "NVIDIA AI", RSSURLs: []string{"https://blogs.nvidia.com/feed/"}, FallbackURLs: []string{"https://blogs.nvidia.com/blog/category/deep-learning/"}},
		{Domain: "deepmind.google", Name: "Google DeepMind", FallbackURLs: []string{"https://deepmind.google/discover/blog/"}},
		{Domain: "huggingface.co", Name: "Hugging Face", FallbackURLs: []string{"https://huggingface.co/blog"}},
		{Domain: "aws.amazon.com", Name: "AWS AI/ML", RSSURLs: []string{"https://aws.amazon.com/blogs/machine-learning/feed/"}, FallbackURLs: []string{"https://aws.amazon.com/blogs/machine-learning/"}},
	}
}

// LoadRegistry builds the registry from the built-in sources, optionally
// merged with a YAML file. File entries override built-ins by domain.
func LoadRegistry(path string) (*Registry, error) {
	registry := &Registry{byDomain: make(map[string]Source)}
	for _, source := range DefaultSources() {
		registry.byDomain[source.Domain] = source
	}

	if path == "" {
		return registry, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return registry, nil
		}
		return nil, fmt.Errorf("read sources file: %w", err)
	}

	var parsed sourcesFile
	if err := yaml.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("parse sources file %s: %w", path, err)
	}

	for _, source := range parsed.Sources {
		if source.Domain == "" {
			return nil, fmt.Errorf("sources file %s: entry missing domain", path)
		}
		if source.Name == "" {
			source.Name = source.Domain
		}
		registry.byDomain[source.Domain] = source
	}

	return registry, nil
}

// Lookup returns the source for a domain.
func (r *Registry) Lookup(domain string) (Source, bool) {
	source, ok := r.byDomain[domain]
	return source, ok
}

// Domains lists all registered domains, sorted.
func (r *Registry) Domains() []string {
	domains := make([]string, 0, len(r.byDomain))
	for domain := range r.byDomain {
		domains = append(domains, domain)
	}
	sort.Strings(domains)
	return domains
}

// Select resolves the requested domains to sources, splitting off anything
// unknown. An empty request selects every registered source.
func (r *Registry) Select(domains []string) (sources []Source, unknown []string) {
	if len(domains) == 0 {
		for _, domain := range r.Domains() {
			sources = append(sources, r.byDomain[domain])
		}
		return sources, nil
	}

	for _, domain := range domains {
		if source, ok := r.byDomain[domain]; ok {
			sources = append(sources, source)
		} else {
			unknown = append(unknown, domain)
		}
	}
	return sources, unknown
}
