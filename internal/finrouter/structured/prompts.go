package structured

import "fmt"

const (
	sqlMaxTokens       = 1024
	narrationMaxTokens = 2048
)

func sqlPrompt(schema, question string) string {
	return fmt.Sprintf(`You are an expert SQL query generator for a financial database.

Database Schema:
%s

User Question: %s

Generate a valid SQLite query to answer this question. Follow these rules:
1. Return ONLY the SQL query, no explanations
2. Use proper SQLite syntax
3. Include appropriate JOINs if multiple tables are needed
4. Use meaningful column aliases for better readability
5. Add LIMIT clause if the result set might be large (default LIMIT 100)
6. For calculations, use ROUND() for decimal places

SQL Query:`, schema, question)
}

func narrationPrompt(question, rows string) string {
	return fmt.Sprintf(`You are a financial analyst assistant. A user asked a question and we retrieved data from the database.

User Question: %s

Query Results:
%s

Provide a clear, concise answer to the user's question based on these results. Include:
1. A direct answer to their question
2. Key numbers and insights
3. Present data in a clean format (use tables if showing multiple rows)

Keep your response professional and CFO-appropriate.`, question, rows)
}
