package mcpserver

// ContentFormat describes how entry text is written so that search, tags
// and backlinks pick it up.
const ContentFormat = `# sumi Content Format

A store is a tree: cabinet > folders > cards > entries. Only entries carry
text. Folders hold folders and cards, cards hold entries.

## Entry kinds

- ` + "`line`" + `: a single line of text (user names, account numbers). Line
  breaks are rejected.
- ` + "`text`" + `: free multi-line text. Line endings are stored as "\n".

## Markup inside entries

1. **Tags** are written inline as ` + "`#tag`" + `. Lowercase, kebab-case:
   ` + "`#project-x`" + `, ` + "`#bank`" + `.
2. **Links** to other cards use double brackets with the card label:
   ` + "`[[checking account]]`" + `. ` + "`[[label|shown text]]`" + ` keeps the label as target.
3. A ` + "`text`" + ` entry may start with a YAML header between ` + "`---`" + ` lines.
   Its ` + "`tags`" + ` list is merged with the inline tags:

` + "```" + `
---
tags:
  - finance
---
Opened 2024, see [[savings]].
` + "```" + `

## Rules

- Labels are single-line and non-empty.
- A card's tags and links are the union over its entries.
- Search covers card labels, entry labels and entry text.
- The store must be unlocked before any of it can be read or changed.
`
