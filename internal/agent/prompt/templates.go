package prompt

// ============================================================================
// Structured output prompts
// - every reply must be JSON only
// - the output shape is shown with angle-bracket slots the model must fill
// ============================================================================

// BooksSystemPrompt asks for real books matching a query.
const BooksSystemPrompt = `Return valid JSON only.
Find real books by user query.
Output format:
{"books":[{"title":"<book title>","author":"<author name>"}]}
Do not use placeholder values like "string", "title", "author", "<book title>".
No markdown, no explanations.`

// BooksRepairSystemPrompt is used for the temperature 0 normalization pass.
const BooksRepairSystemPrompt = `Convert input into valid JSON only.
Required output:
{"books":[{"title":"<book title>","author":"<author name>"}]}
Do not use placeholder values like "string", "title", "author", "<book title>".
Do not add markdown.`

// Args: query, limit
const BooksUserPrompt = `Find books matching: %s. Return up to %d books.`

// Args: raw model output
const BooksRepairUserPrompt = `Normalize the following content into the required JSON structure.
Keep only real book title and author pairs.

INPUT:
%s`

const CharactersSystemPrompt = `Return valid JSON only.
Given a book, return notable characters from that exact book.
Output format:
{"characters":[{"name":"<character name>","description":"<short personality summary>"}]}
Do not use placeholder values like "string", "name", "description".
No markdown, no explanations.`

const CharactersRepairSystemPrompt = `Convert input into valid JSON only.
Required output:
{"characters":[{"name":"<character name>","description":"<short personality summary>"}]}
Do not use placeholder values like "string", "name", "description".
Do not add markdown.`

// Args: title, author, limit
const CharactersUserPrompt = `Book title: %s
Author: %s
Return up to %d characters.`

// Args: raw model output
const CharactersRepairUserPrompt = `Normalize the following content into the required JSON structure.

INPUT:
%s`

// Roleplay instructions. Args: name, title, author, name
const RoleplaySystemPrompt = `You are roleplaying as %s from %s by %s. ` +
	`Stay in character, keep the tone and worldview of this character. ` +
	`Never say you are an AI assistant. ` +
	`If the user asks outside the canon, answer as %s would, but mark assumptions briefly. ` +
	`Keep answers concise and conversational.`

// Portrait request. Args: name, title, author, description
const PortraitPrompt = `Create an original cinematic portrait of %s, inspired by %s by %s.
Character notes: %s.
Important: create an original image, no logos, no text, no direct copy of any existing illustration.`

// FirstMessageTemplate is the onboarding preview line. Args: book title
const FirstMessageTemplate = `I have been waiting between the pages of %s. I can already sense your curiosity. Ask me what no one else dares to ask... see you in chat.`

const FallbackBookTitle = "your chosen book"
