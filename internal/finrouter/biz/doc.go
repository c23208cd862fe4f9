// Package biz 实现金融查询路由的核心业务逻辑。
//
// 查询首先由 Classifier 分类为 STRUCTURED、RETRIEVAL 或 WEB，
// 再由 Orchestrator 分发给对应的处理器，并将结果统一为 AgentResult：
//
//   - STRUCTURED: 生成 SQL 并在关系库中执行，结果由模型转述
//   - RETRIEVAL:  在政策文档索引中检索相关片段，支持多轮会话记忆
//   - WEB:        调用网络搜索，按编号引用来源生成回答
//
// 文档索引由 Indexer 负责：切分、批量向量化并整体替换索引内容。
package biz
