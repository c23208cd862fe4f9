package biz

import "fmt"

// 各调用点的生成长度上限。
const (
	classifierMaxTokens = 10
	condenseMaxTokens   = 256
	answerMaxTokens     = 2048
)

func classifierPrompt(query string) string {
	return fmt.Sprintf(`You are a query routing system for a CFO AI assistant. You must classify the user's query into ONE of these categories:

1. SQL - Questions about financial data, metrics, company performance, numbers
   Examples:
   - "Show me top 5 companies by revenue"
   - "What is the average profit margin?"
   - "Which companies have debt-to-equity ratio above 2?"
   - "Compare revenue across sectors"

2. RAG - Questions about internal policies, procedures, guidelines, approval processes
   Examples:
   - "What's the approval process for expenses over $10,000?"
   - "How should we recognize revenue from subscriptions?"
   - "What's our travel policy?"
   - "What are the investment restrictions?"

3. WEB - Questions about current events, market trends, external information, competitors
   Examples:
   - "What are current market trends?"
   - "Latest news about inflation"
   - "What are competitors doing?"
   - "Recent regulatory changes"

User Query: %s

Respond with ONLY ONE WORD: SQL, RAG, or WEB`, query)
}

func retrievalPrompt(context, question string) string {
	return fmt.Sprintf(`You are a helpful financial policy assistant. Answer the user's question based on the provided policy documents.

Policy Documents Context:
%s

User Question: %s

Instructions:
1. Answer the question clearly and accurately based on the policy documents
2. Cite specific policy names and sections when relevant
3. If the documents don't contain the answer, say so
4. Be specific with numbers, thresholds, and requirements
5. Use a professional, CFO-appropriate tone

Answer:`, context, question)
}

func conversationalPrompt(history, context, question string) string {
	return fmt.Sprintf(`You are a helpful financial policy assistant. Answer the user's question based on the provided policy documents and the conversation so far.

Conversation History:
%s

Policy Documents Context:
%s

User Question: %s

Instructions:
1. Answer the question clearly and accurately based on the policy documents
2. Use the conversation history to resolve references such as "that" or "what about"
3. If the documents don't contain the answer, say so
4. Be specific with numbers, thresholds, and requirements
5. Use a professional, CFO-appropriate tone

Answer:`, history, context, question)
}

func condensePrompt(history, question string) string {
	return fmt.Sprintf(`Given the following conversation and a follow up question, rephrase the follow up question to be a standalone question, in its original language.

Chat History:
%s
Follow Up Input: %s
Standalone question:`, history, question)
}

func webPrompt(context, question string) string {
	return fmt.Sprintf(`You are a helpful financial research assistant. Answer the user's question based on the web search results provided.

Web Search Results:
%s

User Question: %s

Instructions:
1. Provide a clear, concise answer based on the search results
2. Cite sources using [1], [2], etc. format
3. Focus on the most relevant and recent information
4. If information is conflicting, mention different perspectives
5. Be objective and factual

Answer:`, context, question)
}
