package agent

import "fmt"

func completeCodePrompt(language, code string) string {
	return fmt.Sprintf("You are an expert %s programmer. Complete the following code:\n\n%s\n\nComplete the code:", language, code)
}

func suggestImprovementsPrompt(language, code string) string {
	return fmt.Sprintf("You are an expert %s programmer. Review the following code and suggest improvements:\n\n%s\n\nSuggestions:", language, code)
}

func generateCodePrompt(language, description string) string {
	return fmt.Sprintf("You are an expert %s programmer. Generate code based on the following description:\n\n%s\n\nGenerated code:", language, description)
}

func ragPrompt(context, query string) string {
	return fmt.Sprintf("Context: %s\n\nQuestion: %s\n\nAnswer:", context, query)
}

func enhancedPrompt(query, snippet string) string {
	return fmt.Sprintf("Based on the following web search results, please provide a more detailed answer to the question: %s\n\nWeb Search Results:\n%s\n\nAnswer:", query, snippet)
}
