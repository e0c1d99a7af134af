package oracle

import "strings"

const searchPrompt = "A user is searching for an anime. They typed: '{query}'. " +
	"Check if this query is a common misspelling, synonym, or a close match for one of the following anime titles: {anime_list}. " +
	"Respond only with the **exact correct anime title** from the list that matches the user's intent. " +
	"If you cannot find a strong match, respond with the word 'NONE'.\n\nAnime List: {anime_list}"

// BuildPrompt renders the search prompt for query over candidates.
func BuildPrompt(query string, candidates []string) string {
	return strings.NewReplacer(
		"{query}", query,
		"{anime_list}", strings.Join(candidates, ", "),
	).Replace(searchPrompt)
}
