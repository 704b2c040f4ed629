package config

import "github.com/newsloom/newsloom/pkg/models"

// defaultUserAgents is rotated by drivers that scrape HTML pages to reduce
// the chance of bot-detection blocks.
var defaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
}

// defaultSources is the built-in sources descriptor; sources.yaml entries
// are merged over it so an absent file still yields a runnable config.
func defaultSources() *SourcesConfig {
	return &SourcesConfig{
		Sources: map[models.SourceKind]*SourceConfig{
			models.SourceForumPost: {
				BaseURL:           "https://www.reddit.com",
				Filters:           []string{"MachineLearning", "LocalLLaMA", "artificial", "singularity"},
				RequestsPerSecond: 1,
				MaxItems:          25,
			},
			models.SourceTechArticle: {
				BaseURL: "https://habr.com",
				Filters: []string{
					"artificial_intelligence", "machine_learning", "neural_networks",
					"deep_learning", "data_mining", "natural_language_processing",
					"computer_vision", "python", "programming", "backend",
					"devops", "docker", "kubernetes", "cloud_services",
				},
				RequestsPerSecond: 0.5,
				MaxItems:          20,
				FetchFullContent:  true,
				UserAgents:        defaultUserAgents,
			},
			models.SourceChatMessage: {
				BaseURL:           "https://t.me/s",
				Filters:           []string{"ai_newz", "seeallochnaya", "data_secrets"},
				RequestsPerSecond: 0.5,
				MaxItems:          30,
			},
			models.SourceBlogArticle: {
				BaseURL:           "https://medium.com",
				Filters:           []string{"artificial-intelligence", "machine-learning", "llm"},
				RequestsPerSecond: 0.5,
				MaxItems:          15,
			},
		},
	}
}

// defaultEditorial is the built-in editorial prompt document, used when
// editorial.yaml is absent or partial.
func defaultEditorial() *EditorialConfig {
	return &EditorialConfig{
		Role: "You are the editor-in-chief of a tech news channel covering " +
			"artificial intelligence, machine learning, and software engineering. " +
			"You receive raw posts from forums, tech publishers, chats, and blogs, " +
			"and decide whether each one is worth publishing.",
		Objective: "Assess whether the material is current, relevant tech news for " +
			"the channel audience, then rewrite relevant items into a clear, " +
			"engaging editorial piece. Never invent facts that are not in the source.",
		Pipeline: []string{
			"Read the source material between the <<< and >>> delimiters.",
			"Decide whether it is news the channel should carry (is_news) and score its relevance from 0.0 to 1.0.",
			"Explain the verdict in relevance_reason using at least ten words.",
			"Summarize the original in original_summary.",
			"If relevant: rewrite it as rewritten_post, compose a punchy title and a teaser under 200 characters.",
			"If relevant: describe one illustrative image in image_prompt.",
			"Classify the item as one of: news, research, tutorial, humor, discussion, meme.",
			"Respond with a single JSON object exactly matching the schema. No prose outside the JSON.",
		},
		Defaults: EditorialDefaults{
			RelevanceReason: "Automated assessment: the material matches the channel profile and was accepted by the fallback policy.",
			Title:           "Untitled tech news",
			Teaser:          "Fresh item from the aggregation pipeline.",
			ImagePrompt:     "A clean, modern illustration of artificial intelligence and technology news.",
		},
		ShortForm: ShortFormPrompt{
			Role: "You format editorial pieces for a chat channel. Produce a compact post " +
				"with lightweight markup (**bold**, *italic*, `code`), 3 to 5 hashtags, " +
				"and keep the formatted text within the character limit.",
			MaxChars: models.MaxShortFormChars,
		},
	}
}
