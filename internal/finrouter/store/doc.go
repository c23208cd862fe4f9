// Package store 提供政策文档的向量索引。
//
// 索引以"代"为单位整体替换：Replace 写入一批新块并记录代号，
// 旧内容一并丢弃。MemoryStore 以原子指针发布不可变快照，
// MilvusStore 每代写入独立集合，成功后切换别名。
package store
